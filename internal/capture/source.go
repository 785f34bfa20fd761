package capture

import (
	"log/slog"
	"sync"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
)

// DefaultTimeout bounds one AcquireFrame call.
const DefaultTimeout = 16 * time.Millisecond

// Acquire results. Compare with errors.Is; returned errors may carry extra
// context or a cause.
var (
	ErrNoNewFrame       = faults.New(faults.KindTransient, faults.CodeNoNewFrame, "no new frame within timeout")
	ErrResourceBusy     = faults.New(faults.KindResource, faults.CodeResourceBusy, "capture resource busy")
	ErrDeviceLost       = faults.New(faults.KindFatalDevice, faults.CodeDeviceLost, "capture device lost")
	ErrFrameNotReleased = faults.New(faults.KindUsage, faults.CodeFrameNotReleased, "previous frame was not released")
	ErrNotHeld          = faults.New(faults.KindUsage, faults.CodeNotHeld, "no frame is held")
	ErrClosed           = faults.New(faults.KindUsage, faults.CodeClosed, "source is closed")
)

// Source yields display frames on demand.
type Source interface {
	// AcquireFrame waits up to timeout for a frame newer than the last one.
	AcquireFrame(timeout time.Duration) (*Frame, error)
	// ReleaseFrame returns the held frame to the source. It must follow every
	// successful AcquireFrame.
	ReleaseFrame() error
	// Size returns the frame dimensions.
	Size() (width, height int)
	Close() error
}

// Kind selects a Source implementation.
type Kind string

// Source kinds.
const (
	KindScreen    Kind = "screen"
	KindX11Grab   Kind = "x11grab"
	KindSynthetic Kind = "synthetic"
)

// Options configures Open.
type Options struct {
	Kind Kind

	Display    int    // screen: display index
	X11Display string // x11grab: X display name
	OffsetX    int
	OffsetY    int
	Width      int // 0 = full display
	Height     int
	FPS        int

	FFmpegBinary string
}

// Factory opens a fresh source. Sessions keep one so they can rebuild
// capture after device loss.
type Factory func() (Source, error)

// Open creates the source selected by opts.Kind.
func Open(opts Options, logger *slog.Logger) (Source, error) {
	switch opts.Kind {
	case KindScreen, "":
		return NewScreenSource(ScreenOptions{
			Display: opts.Display,
			Width:   opts.Width,
			Height:  opts.Height,
			OffsetX: opts.OffsetX,
			OffsetY: opts.OffsetY,
		}, logger)
	case KindX11Grab:
		return NewGrabSource(GrabOptions{
			Binary:  opts.FFmpegBinary,
			Display: opts.X11Display,
			OffsetX: opts.OffsetX,
			OffsetY: opts.OffsetY,
			Width:   opts.Width,
			Height:  opts.Height,
			FPS:     opts.FPS,
		}, logger)
	case KindSynthetic:
		w, h := opts.Width, opts.Height
		if w <= 0 || h <= 0 {
			w, h = 640, 360
		}
		var interval time.Duration
		if opts.FPS > 0 {
			interval = time.Second / time.Duration(opts.FPS)
		}
		return NewSyntheticSource(SyntheticOptions{Width: w, Height: h, Interval: interval, Pattern: PatternMovingBar}), nil
	default:
		return nil, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "unknown capture source").
			With("kind", string(opts.Kind))
	}
}

// NewFactory binds opts and logger into a Factory.
func NewFactory(opts Options, logger *slog.Logger) Factory {
	return func() (Source, error) {
		return Open(opts, logger)
	}
}

// holdGuard enforces the acquire/release pairing.
type holdGuard struct {
	mu     sync.Mutex
	held   bool
	closed bool
}

func (g *holdGuard) acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if g.held {
		return ErrFrameNotReleased
	}
	return nil
}

func (g *holdGuard) hold() {
	g.mu.Lock()
	g.held = true
	g.mu.Unlock()
}

func (g *holdGuard) release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return ErrNotHeld
	}
	g.held = false
	return nil
}

// close marks the guard closed and reports whether it already was.
func (g *holdGuard) close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.closed
	g.closed = true
	g.held = false
	return was
}
