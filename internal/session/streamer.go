package session

import (
	"context"
	"errors"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/mux"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
	"github.com/PZwoodcat/Oleppy-Free/internal/pipeline"
)

// Streamer is the asynchronous path. The calling goroutine captures at the
// configured rate and submits frames to a pipeline whose workers encode and
// mux in the background.
type Streamer struct {
	sc *Context
}

// NewStreamer returns a streamer for sc.
func NewStreamer(sc *Context) *Streamer {
	return &Streamer{sc: sc}
}

// Run streams until the configured duration has passed or ctx is cancelled.
// Stopping drains both queues before the output is closed.
func (s *Streamer) Run(ctx context.Context) error {
	return s.sc.run(ctx, s.segment)
}

func (s *Streamer) newEncoder(opts encoder.StreamOptions) (pipeline.Encoder, error) {
	if s.sc.NewEncoder != nil {
		return s.sc.NewEncoder(opts)
	}
	return encoder.NewStreamEncoder(opts, logging.GetLogger("encoder"))
}

func (s *Streamer) openMuxer(target string, stream mux.Stream) (mux.Muxer, error) {
	if s.sc.OpenMuxer != nil {
		return s.sc.OpenMuxer(target, stream)
	}
	m, err := mux.Open(target, stream, logging.GetLogger("mux"))
	if err != nil || !s.sc.Config.RawH264 || rawTarget(target) == "" {
		return m, err
	}
	raw, err := mux.Open(rawTarget(target), stream, logging.GetLogger("mux"))
	if err != nil {
		m.Close()
		return nil, err
	}
	return mux.NewTee(m, raw), nil
}

// rawTarget returns the raw H.264 side output for target, or "" when
// target is not a file.
func rawTarget(target string) string {
	if target == "" || isNetworkTarget(target) {
		return ""
	}
	if raw := encoder.RawPath(target); raw != target {
		return raw
	}
	return ""
}

func (s *Streamer) segment(ctx context.Context, _ int, path string, duration time.Duration) (err error) {
	sc := s.sc
	cfg := sc.Config

	src, err := sc.openSource()
	if err != nil {
		return err
	}
	defer src.Close()

	w, h := src.Size()
	m, err := s.openMuxer(path, mux.Stream{Width: w, Height: h, FPS: cfg.FPS})
	if err != nil {
		return err
	}

	pl, err := pipeline.New(pipeline.Options{
		Session:      cfg.Name,
		Width:        w,
		Height:       h,
		FPS:          cfg.FPS,
		OutputFormat: cfg.PixelFormat,
		EncodeQueue:  cfg.QueueCapacity,
		MuxQueue:     cfg.QueueCapacity,
		Policy:       cfg.Policy,
		Bus:          sc.Bus,
	}, func(emit func(mux.Packet) error) (pipeline.Encoder, error) {
		return s.newEncoder(encoder.StreamOptions{
			Binary:      cfg.FFmpegBinary,
			Encoder:     cfg.Encoder,
			Preset:      cfg.Preset,
			Session:     cfg.Name,
			Width:       w,
			Height:      h,
			FPS:         cfg.FPS,
			Bitrate:     cfg.Bitrate,
			PixelFormat: cfg.PixelFormat,
			Emit:        emit,
		})
	}, m, logging.GetLogger("pipeline"))
	if err != nil {
		return err
	}
	defer func() {
		sc.setState(StateFinalizing, sc.Status().Segment)
		stopErr := pl.Stop()
		dropped := pl.Stats().Dropped
		sc.update(func(st *Status) { st.FramesDropped += dropped })
		if stopErr != nil {
			err = errors.Join(err, stopErr)
			return
		}
		sc.segmentFinalized(path, pl.Stats().Muxed)
	}()

	p := pacer.New(sc.Clock, duration)
	frameDur := time.Second / time.Duration(cfg.FPS)
	var submitted int64

	for !p.Done(ctx) {
		// Capture no faster than the output rate; the pipeline stamps frames
		// by count.
		due := time.Duration(submitted) * frameDur
		if wait := due - p.Elapsed(); wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-sc.Clock.After(wait):
			}
		}

		f, err := src.AcquireFrame(cfg.AcquireTimeout)
		if err != nil {
			if faults.IsRetryable(err) {
				sc.countMissed(err)
				if p.Backoff(ctx) != nil {
					break
				}
				continue
			}
			return err
		}
		frame := f.Clone()
		sc.countCaptured()
		if err := src.ReleaseFrame(); err != nil {
			return err
		}

		if err := pl.Submit(ctx, frame); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		submitted++
		sc.countEncoded()
	}
	return nil
}
