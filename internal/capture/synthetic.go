package capture

import (
	"sync"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
)

// Pattern selects the generated image.
type Pattern int

// Generated patterns.
const (
	// PatternRowIndex fills every byte of row i with i mod 256.
	PatternRowIndex Pattern = iota
	// PatternMovingBar draws a white vertical bar that advances each frame.
	PatternMovingBar
)

// SyntheticOptions configures a SyntheticSource.
type SyntheticOptions struct {
	Width   int
	Height  int
	Stride  int // 0 = Width*4; larger values add row padding
	Pattern Pattern
	// Interval between new frames. 0 produces a new frame on every call.
	Interval time.Duration
	// Script is consumed one entry per AcquireFrame before normal generation.
	// nil entries produce a frame, others are returned as the result.
	Script []error
}

// SyntheticSource generates deterministic BGRA frames.
type SyntheticSource struct {
	opts  SyntheticOptions
	guard holdGuard

	mu     sync.Mutex
	frame  *Frame
	seq    uint64
	script []error
	last   time.Time
}

// NewSyntheticSource creates a generator.
func NewSyntheticSource(opts SyntheticOptions) *SyntheticSource {
	if opts.Stride < opts.Width*4 {
		opts.Stride = opts.Width * 4
	}
	return &SyntheticSource{
		opts: opts,
		frame: &Frame{
			Width:  opts.Width,
			Height: opts.Height,
			Stride: opts.Stride,
			Format: pixfmt.BGRA,
			Data:   make([]byte, opts.Stride*opts.Height),
		},
		script: append([]error(nil), opts.Script...),
	}
}

// AcquireFrame implements Source.
func (s *SyntheticSource) AcquireFrame(timeout time.Duration) (*Frame, error) {
	if err := s.guard.acquire(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.script) > 0 {
		next := s.script[0]
		s.script = s.script[1:]
		if next != nil {
			return nil, next
		}
		return s.emit(time.Now()), nil
	}

	now := time.Now()
	if s.opts.Interval > 0 && !s.last.IsZero() {
		due := s.last.Add(s.opts.Interval)
		if wait := due.Sub(now); wait > 0 {
			if wait > timeout {
				time.Sleep(timeout)
				return nil, ErrNoNewFrame
			}
			time.Sleep(wait)
			now = due
		}
	}
	return s.emit(now), nil
}

// emit renders the next frame and marks it held. Callers hold s.mu.
func (s *SyntheticSource) emit(now time.Time) *Frame {
	s.seq++
	s.last = now
	s.render()
	s.frame.Seq = s.seq
	s.frame.CapturedAt = now
	s.guard.hold()
	return s.frame
}

func (s *SyntheticSource) render() {
	f := s.frame
	switch s.opts.Pattern {
	case PatternMovingBar:
		barWidth := max(f.Width/16, 1)
		start := int(s.seq-1) * barWidth % max(f.Width, 1)
		for y := 0; y < f.Height; y++ {
			row := f.Data[y*f.Stride : y*f.Stride+f.Width*4]
			for x := 0; x < f.Width; x++ {
				px := row[x*4 : x*4+4]
				if x >= start && x < start+barWidth {
					px[0], px[1], px[2] = 255, 255, 255
				} else {
					px[0], px[1], px[2] = byte(x), byte(y), 64
				}
				px[3] = 255
			}
		}
	default:
		for y := 0; y < f.Height; y++ {
			row := f.Data[y*f.Stride : (y+1)*f.Stride]
			v := byte(y)
			for i := range row {
				row[i] = v
			}
		}
	}
}

// ReleaseFrame implements Source.
func (s *SyntheticSource) ReleaseFrame() error {
	return s.guard.release()
}

// Size implements Source.
func (s *SyntheticSource) Size() (int, int) {
	return s.opts.Width, s.opts.Height
}

// Close implements Source.
func (s *SyntheticSource) Close() error {
	s.guard.close()
	return nil
}
