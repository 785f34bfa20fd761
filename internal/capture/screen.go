package capture

import (
	"image"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/kbinani/screenshot"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
)

// screenPollInterval is how often an unchanged display is grabbed again
// while AcquireFrame waits.
const screenPollInterval = 4 * time.Millisecond

// ScreenOptions configures a ScreenSource.
type ScreenOptions struct {
	Display int
	OffsetX int // region origin relative to the display
	OffsetY int
	Width   int // 0 = full display
	Height  int
}

// ScreenSource grabs a display with github.com/kbinani/screenshot.
//
// Grabs are polled: an image whose hash matches the previous frame is not
// new, and the call keeps polling until the timeout expires.
type ScreenSource struct {
	opts    ScreenOptions
	logger  *slog.Logger
	guard   holdGuard
	convert pixfmt.ConvertFunc

	bounds   image.Rectangle // display bounds at open
	region   image.Rectangle
	frame    *Frame
	lastHash uint64
	seq      uint64
}

// NewScreenSource opens a display. A missing display is a device error.
func NewScreenSource(opts ScreenOptions, logger *slog.Logger) (*ScreenSource, error) {
	if n := screenshot.NumActiveDisplays(); opts.Display < 0 || opts.Display >= n {
		return nil, ErrDeviceLost.With("display", opts.Display).With("active_displays", n)
	}
	bounds := screenshot.GetDisplayBounds(opts.Display)
	region, err := screenRegion(bounds, opts)
	if err != nil {
		return nil, err
	}
	convert, err := pixfmt.Default().Lookup(pixfmt.RGBA, pixfmt.BGRA)
	if err != nil {
		return nil, err
	}

	logger.Info("Screen source opened", "display", opts.Display, "bounds", bounds.String(), "region", region.String())
	return &ScreenSource{
		opts:    opts,
		logger:  logger,
		convert: convert,
		bounds:  bounds,
		region:  region,
		frame:   NewFrame(region.Dx(), region.Dy(), pixfmt.BGRA),
	}, nil
}

// screenRegion resolves the capture rectangle inside the display bounds.
func screenRegion(bounds image.Rectangle, opts ScreenOptions) (image.Rectangle, error) {
	w, h := opts.Width, opts.Height
	if w <= 0 || h <= 0 {
		w, h = bounds.Dx()-opts.OffsetX, bounds.Dy()-opts.OffsetY
	}
	origin := bounds.Min.Add(image.Pt(opts.OffsetX, opts.OffsetY))
	region := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(w, h))}
	if region.Empty() || !region.In(bounds) {
		return image.Rectangle{}, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "capture region outside display").
			With("region", region.String()).With("bounds", bounds.String())
	}
	return region, nil
}

// AcquireFrame implements Source.
func (s *ScreenSource) AcquireFrame(timeout time.Duration) (*Frame, error) {
	if err := s.guard.acquire(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := s.checkDisplay(); err != nil {
			return nil, err
		}

		img, err := screenshot.CaptureRect(s.region)
		if err != nil {
			return nil, faults.Wrap(faults.KindFatalDevice, faults.CodeDeviceLost, "display grab failed", err)
		}

		if hash := xxhash.Sum64(img.Pix); hash != s.lastHash || s.seq == 0 {
			if err := s.convert(s.frame.Data, img.Pix, s.frame.Width, s.frame.Height, img.Stride); err != nil {
				return nil, err
			}
			s.lastHash = hash
			s.seq++
			s.frame.Seq = s.seq
			s.frame.CapturedAt = time.Now()
			s.guard.hold()
			return s.frame, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNoNewFrame
		}
		time.Sleep(min(remaining, screenPollInterval))
	}
}

// checkDisplay reports device loss when the display vanished or changed mode.
func (s *ScreenSource) checkDisplay() error {
	if screenshot.NumActiveDisplays() <= s.opts.Display {
		return ErrDeviceLost.With("display", s.opts.Display)
	}
	if b := screenshot.GetDisplayBounds(s.opts.Display); b != s.bounds {
		s.logger.Warn("Display bounds changed", "was", s.bounds.String(), "now", b.String())
		return ErrDeviceLost.With("display", s.opts.Display).With("bounds", b.String())
	}
	return nil
}

// ReleaseFrame implements Source.
func (s *ScreenSource) ReleaseFrame() error {
	return s.guard.release()
}

// Size implements Source.
func (s *ScreenSource) Size() (int, int) {
	return s.region.Dx(), s.region.Dy()
}

// Close implements Source.
func (s *ScreenSource) Close() error {
	s.guard.close()
	return nil
}
