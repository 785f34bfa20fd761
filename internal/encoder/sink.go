package encoder

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
)

// State is the lifecycle position of a Sink.
type State int

// Sink states.
const (
	StateUnconfigured State = iota
	StateConfigured
	StateWriting
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateWriting:
		return "writing"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Sink errors.
var (
	ErrFinalized  = faults.New(faults.KindUsage, faults.CodeFinalized, "sink already finalized")
	ErrNotWriting = faults.New(faults.KindUsage, faults.CodeNotWriting, "sink is not writing")
)

// Sink accepts raw frames for one output file.
type Sink struct {
	backend Backend
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	stream Stream
	writer Writer
	frames int64
}

// NewSink returns an unconfigured sink.
func NewSink(backend Backend, logger *slog.Logger) *Sink {
	return &Sink{backend: backend, logger: logger}
}

// Begin declares the output stream and starts writing. bitrate 0 selects
// DefaultBitrate.
func (s *Sink) Begin(width, height, fps int, path string, bitrate int) error {
	return s.BeginStream(Stream{
		Width:   width,
		Height:  height,
		FPS:     fps,
		Bitrate: bitrate,
		Path:    path,
	})
}

// BeginStream is Begin with the full stream description. A file already at
// the output path is moved aside until the backend has opened; any failure
// removes the partial output and puts the previous file back.
func (s *Sink) BeginStream(st Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnconfigured {
		return faults.New(faults.KindUsage, faults.CodeAlreadyBegun, "sink already begun").
			With("state", s.state.String())
	}
	if st.Bitrate == 0 {
		st.Bitrate = DefaultBitrate
	}
	if err := st.validate(); err != nil {
		return err
	}

	backup, err := setAside(st.Path)
	if err != nil {
		return err
	}

	s.stream = st
	s.state = StateConfigured

	w, err := s.backend.Open(st)
	if err != nil {
		s.state = StateUnconfigured
		if rmErr := os.Remove(st.Path); rmErr == nil {
			s.logger.Debug("Removed partial output", "path", st.Path)
		}
		if backup != "" {
			if mvErr := os.Rename(backup, st.Path); mvErr != nil {
				s.logger.Warn("Failed to restore previous output", "path", st.Path, "backup", backup, "error", mvErr)
			}
		}
		return err
	}
	if backup != "" {
		if rmErr := os.Remove(backup); rmErr != nil {
			s.logger.Warn("Failed to remove previous output", "backup", backup, "error", rmErr)
		}
	}

	s.writer = w
	s.frames = 0
	s.state = StateWriting
	s.logger.Info("Encoding started",
		"path", st.Path,
		"size", [2]int{st.Width, st.Height},
		"fps", st.FPS,
		"bitrate", st.Bitrate)
	return nil
}

// WriteFrame copies one BGRA frame and submits it at ts, in 100ns ticks.
// buf may be reused as soon as WriteFrame returns.
func (s *Sink) WriteFrame(buf []byte, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWriting {
		return ErrNotWriting.With("state", s.state.String())
	}
	size := s.stream.FrameSize()
	if len(buf) < size {
		return faults.New(faults.KindUsage, faults.CodeShortBuffer, "frame buffer too short").
			With("have", len(buf)).
			With("want", size)
	}

	sample := Sample{Data: make([]byte, size), PTS: ts}
	copy(sample.Data, buf)
	if s.stream.ConstantRate {
		sample.Duration = pacer.FrameDuration(s.stream.FPS)
	}
	if err := s.writer.WriteSample(sample); err != nil {
		return err
	}
	s.frames++
	return nil
}

// End flushes and closes the output. A sink that never began is finalized
// without error; a second End returns ErrFinalized.
func (s *Sink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateFinalized:
		return ErrFinalized
	case StateUnconfigured, StateConfigured:
		s.state = StateFinalized
		return nil
	}

	s.state = StateFinalized
	err := s.writer.Finalize()
	s.writer = nil
	if err != nil {
		return fmt.Errorf("finalize %s: %w", s.stream.Path, err)
	}
	s.logger.Info("Encoding finished", "path", s.stream.Path, "frames", s.frames)
	return nil
}

// State returns the current lifecycle state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frames returns the number of frames accepted since Begin.
func (s *Sink) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Stream returns the declared stream.
func (s *Sink) Stream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// setAside renames an existing file at path so a backend that truncates on
// open cannot destroy it. It returns the backup name, or "" if nothing was
// there.
func setAside(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	backup := path + ".prev"
	if err := os.Rename(path, backup); err != nil {
		return "", faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "cannot move existing output aside", err).
			With("path", path)
	}
	return backup, nil
}
