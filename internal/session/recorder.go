package session

import (
	"context"
	"errors"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
	"github.com/PZwoodcat/Oleppy-Free/internal/ring"
)

// Recorder is the CPU path. One goroutine runs every tick:
//
//  1. acquire a frame (bounded wait)
//  2. publish it into the copy ring
//  3. release it to the source
//  4. stage the latest copy and read back the previous one
//  5. stamp the wall-clock time
//  6. hand the frame to the encoder sink
//
// A tick without a frame or with a busy staging slot backs off for 5 ms and
// leaves the timeline untouched.
type Recorder struct {
	sc *Context
}

// NewRecorder returns a recorder for sc.
func NewRecorder(sc *Context) *Recorder {
	return &Recorder{sc: sc}
}

// Run records until the configured duration has passed or ctx is cancelled.
// Each device loss finalizes the current file and continues in a new one.
func (r *Recorder) Run(ctx context.Context) error {
	if r.sc.Backend == nil {
		return faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "no encoder backend")
	}
	return r.sc.run(ctx, r.segment)
}

func (r *Recorder) segment(ctx context.Context, segment int, path string, duration time.Duration) (err error) {
	sc := r.sc
	cfg := sc.Config

	src, err := sc.openSource()
	if err != nil {
		return err
	}
	defer src.Close()

	w, h := src.Size()
	sink := encoder.NewSink(sc.Backend, sc.log.With("segment", segment))
	if err := sink.BeginStream(encoder.Stream{
		Width:        w,
		Height:       h,
		FPS:          cfg.FPS,
		Bitrate:      cfg.Bitrate,
		Path:         path,
		ConstantRate: cfg.ConstantRate,
		BottomUp:     true,
	}); err != nil {
		return err
	}
	defer func() {
		sc.setState(StateFinalizing, sc.Status().Segment)
		if endErr := sink.End(); endErr != nil {
			err = errors.Join(err, endErr)
			return
		}
		sc.segmentFinalized(path, sink.Frames())
	}()

	var stager ring.Stager
	if sc.Stager != nil {
		stager = sc.Stager()
	} else {
		stager = ring.NewHostStager(1)
	}
	copies := ring.NewCopyRing()
	readback := ring.NewReadbackRing(stager)
	p := pacer.New(sc.Clock, duration)
	var overrun uint64

	// backoff reports whether the loop should go on.
	backoff := func(cause error) bool {
		sc.countMissed(cause)
		return p.Backoff(ctx) == nil
	}

	for !p.Done(ctx) {
		f, err := src.AcquireFrame(cfg.AcquireTimeout)
		if err != nil {
			if faults.IsRetryable(err) {
				if !backoff(err) {
					break
				}
				continue
			}
			return err
		}
		copies.Publish(f)
		sc.countCaptured()
		if err := src.ReleaseFrame(); err != nil {
			return err
		}

		latest, _, ok := copies.Latest()
		if n := copies.Overrun(); n > overrun {
			for ; overrun < n; overrun++ {
				metrics.IncRingOverrun(cfg.Name)
			}
		}
		if !ok {
			continue
		}

		out, err := readback.Step(latest)
		if err != nil {
			if faults.IsRetryable(err) {
				if !backoff(err) {
					break
				}
				continue
			}
			return err
		}

		if err := sink.WriteFrame(out.Data, p.Stamp()); err != nil {
			return err
		}
		sc.countEncoded()
	}
	return nil
}
