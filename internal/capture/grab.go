package capture

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/ffmpeg"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
	"github.com/PZwoodcat/Oleppy-Free/internal/process"
)

// GrabOptions configures a GrabSource.
type GrabOptions struct {
	Binary  string
	Display string
	OffsetX int
	OffsetY int
	Width   int
	Height  int
	FPS     int
}

// GrabSource captures an X11 display through an ffmpeg x11grab subprocess
// that writes raw BGRA frames to its stdout.
type GrabSource struct {
	*rawStream
	proc *process.Process
}

// NewGrabSource starts the grab process.
func NewGrabSource(opts GrabOptions, logger *slog.Logger) (*GrabSource, error) {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "x11grab needs an explicit width and height")
	}
	command, err := ffmpeg.BuildGrabCommand(&ffmpeg.GrabParams{
		Binary:  opts.Binary,
		Display: opts.Display,
		OffsetX: opts.OffsetX,
		OffsetY: opts.OffsetY,
		Width:   opts.Width,
		Height:  opts.Height,
		FPS:     opts.FPS,
	})
	if err != nil {
		return nil, faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "build grab command", err)
	}

	proc, err := process.New("x11grab", command, logger, process.Options{
		PipeStdout:    true,
		ProcessLogger: logging.GetLogger("ffmpeg"),
		LogParser:     ffmpeg.ParseLogLevel,
	})
	if err != nil {
		return nil, faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "parse grab command", err)
	}
	if err := proc.Start(); err != nil {
		return nil, faults.Wrap(faults.KindFatalDevice, faults.CodeDeviceLost, "start grab process", err)
	}

	return &GrabSource{
		rawStream: newRawStream(proc.Stdout(), opts.Width, opts.Height, proc.Stop),
		proc:      proc,
	}, nil
}

// rawStream turns a byte stream of tightly packed BGRA frames into a Source.
// A reader goroutine keeps only the newest complete frame; older frames that
// were never acquired are recycled.
type rawStream struct {
	width, height int
	frameSize     int
	guard         holdGuard
	stop          func() int

	free   chan []byte
	latest chan []byte
	lost   chan struct{}
	err    error // set before lost is closed

	frame     Frame
	seq       uint64
	closeOnce sync.Once
}

// rawStreamBuffers covers one buffer being filled, one waiting and one held.
const rawStreamBuffers = 3

func newRawStream(r io.Reader, width, height int, stop func() int) *rawStream {
	s := &rawStream{
		width:     width,
		height:    height,
		frameSize: pixfmt.FrameSize(pixfmt.BGRA, width, height),
		stop:      stop,
		free:      make(chan []byte, rawStreamBuffers),
		latest:    make(chan []byte, 1),
		lost:      make(chan struct{}),
		frame: Frame{
			Width:  width,
			Height: height,
			Stride: width * 4,
			Format: pixfmt.BGRA,
		},
	}
	for range rawStreamBuffers {
		s.free <- make([]byte, s.frameSize)
	}
	go s.read(r)
	return s
}

func (s *rawStream) read(r io.Reader) {
	for {
		buf := <-s.free
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = faults.Wrap(faults.KindFatalDevice, faults.CodeDeviceLost, "truncated frame", err)
			}
			s.err = err
			close(s.lost)
			return
		}
		select {
		case stale := <-s.latest:
			s.free <- stale
		default:
		}
		s.latest <- buf
	}
}

// AcquireFrame implements Source.
func (s *rawStream) AcquireFrame(timeout time.Duration) (*Frame, error) {
	if err := s.guard.acquire(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case buf := <-s.latest:
		return s.hold(buf), nil
	default:
	}

	select {
	case buf := <-s.latest:
		return s.hold(buf), nil
	case <-s.lost:
		// Deliver a frame that completed before the stream ended.
		select {
		case buf := <-s.latest:
			return s.hold(buf), nil
		default:
		}
		return nil, faults.Wrap(faults.KindFatalDevice, faults.CodeDeviceLost, "grab stream ended", s.err)
	case <-timer.C:
		return nil, ErrNoNewFrame
	}
}

func (s *rawStream) hold(buf []byte) *Frame {
	s.seq++
	s.frame.Data = buf
	s.frame.Seq = s.seq
	s.frame.CapturedAt = time.Now()
	s.guard.hold()
	return &s.frame
}

// ReleaseFrame implements Source.
func (s *rawStream) ReleaseFrame() error {
	if err := s.guard.release(); err != nil {
		return err
	}
	buf := s.frame.Data
	s.frame.Data = nil
	s.free <- buf
	return nil
}

// Size implements Source.
func (s *rawStream) Size() (int, int) {
	return s.width, s.height
}

// Close implements Source.
func (s *rawStream) Close() error {
	s.closeOnce.Do(func() {
		s.guard.close()
		if s.stop != nil {
			s.stop()
		}
	})
	return nil
}
