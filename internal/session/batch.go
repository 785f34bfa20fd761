package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
)

// CollectFrames acquires n frames from src into memory, backing off on
// retryable results like the recorder does. Frames are spaced at least one
// frame interval apart.
func CollectFrames(ctx context.Context, src capture.Source, n, fps int, timeout time.Duration) ([]*capture.Frame, error) {
	if n <= 0 || fps <= 0 {
		return nil, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "frame count and rate must be positive")
	}
	if timeout <= 0 {
		timeout = capture.DefaultTimeout
	}
	p := pacer.New(nil, 0)
	interval := time.Second / time.Duration(fps)
	frames := make([]*capture.Frame, 0, n)

	for len(frames) < n {
		if wait := time.Duration(len(frames))*interval - p.Elapsed(); wait > 0 {
			select {
			case <-ctx.Done():
				return frames, ctx.Err()
			case <-time.After(wait):
			}
		}
		f, err := src.AcquireFrame(timeout)
		if err != nil {
			if !faults.IsRetryable(err) {
				return frames, err
			}
			if err := p.Backoff(ctx); err != nil {
				return frames, err
			}
			continue
		}
		frames = append(frames, f.Clone())
		if err := src.ReleaseFrame(); err != nil {
			return frames, err
		}
	}
	return frames, nil
}

// EncodeBatch writes frames collected in memory as a constant-rate file:
// frame i is stamped i/fps seconds and lasts exactly one frame.
func EncodeBatch(ctx context.Context, backend encoder.Backend, frames []*capture.Frame, fps, bitrate int, path string, logger *slog.Logger) (err error) {
	if len(frames) == 0 {
		return faults.New(faults.KindUsage, faults.CodeBadState, "no frames to encode")
	}
	w, h := frames[0].Width, frames[0].Height

	sink := encoder.NewSink(backend, logger)
	if err := sink.BeginStream(encoder.Stream{
		Width:        w,
		Height:       h,
		FPS:          fps,
		Bitrate:      bitrate,
		Path:         path,
		ConstantRate: true,
	}); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sink.End())
	}()

	packed := make([]byte, w*h*4)
	for i, f := range frames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.Width != w || f.Height != h {
			return faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "frame size changed").
				With("frame", i).
				With("size", fmt.Sprintf("%dx%d", f.Width, f.Height))
		}
		buf := f.Data
		if f.Stride != w*4 {
			for y := range h {
				copy(packed[y*w*4:(y+1)*w*4], f.Row(y))
			}
			buf = packed
		}
		if err := sink.WriteFrame(buf, pacer.FrameTime(int64(i), fps)); err != nil {
			return err
		}
	}
	logger.Info("Batch encoded", "path", path, "frames", len(frames), "fps", fps)
	return nil
}
