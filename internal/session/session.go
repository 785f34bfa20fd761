// Package session runs recordings: it owns the frame source, the buffering
// and the encoder for one output target and rebuilds all of them when the
// capture device is lost.
//
// Two paths share the same segment loop. The Recorder is the single-threaded
// CPU path (acquire, copy ring, readback, pacer, sink). The Streamer is the
// asynchronous path (capture goroutine, encode queue, mux queue).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
	"github.com/PZwoodcat/Oleppy-Free/internal/events"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
	"github.com/PZwoodcat/Oleppy-Free/internal/mux"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
	"github.com/PZwoodcat/Oleppy-Free/internal/pipeline"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
	"github.com/PZwoodcat/Oleppy-Free/internal/queue"
	"github.com/PZwoodcat/Oleppy-Free/internal/ring"
)

// Mode selects the encode path.
type Mode string

// Encode paths.
const (
	ModeCPU   Mode = "cpu"
	ModeAsync Mode = "async"
)

// ParseMode converts a config value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCPU, "":
		return ModeCPU, nil
	case ModeAsync:
		return ModeAsync, nil
	default:
		return "", faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "unknown encode mode").
			With("mode", s)
	}
}

// Config describes one recording.
type Config struct {
	Name   string // metrics and event label
	Source string // capture kind, for events
	Mode   Mode
	Output string // file path or rtp:// target

	FPS          int
	Bitrate      int
	ConstantRate bool
	// Duration bounds the whole session across segments. 0 records until the
	// context is cancelled.
	Duration       time.Duration
	AcquireTimeout time.Duration
	ReinitAttempts int

	// Async path
	PixelFormat   pixfmt.Format
	QueueCapacity int
	Policy        queue.Policy
	RawH264       bool
	FFmpegBinary  string
	Encoder       string // ffmpeg encoder name, libx264 when empty
	Preset        string
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Mode == "" {
		c.Mode = ModeCPU
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = capture.DefaultTimeout
	}
	if c.ReinitAttempts < 0 {
		c.ReinitAttempts = 0
	}
	if c.PixelFormat == "" {
		c.PixelFormat = pixfmt.BGRA
	}
}

// EncoderFactory creates the async path encoder. opts.Emit is set by the
// pipeline.
type EncoderFactory func(opts encoder.StreamOptions) (pipeline.Encoder, error)

// MuxerFactory opens the async path output.
type MuxerFactory func(target string, stream mux.Stream) (mux.Muxer, error)

// Context carries everything a session needs. The top-level command builds
// it once and hands it to Run.
type Context struct {
	Config  Config
	Logger  *slog.Logger
	Bus     *events.Bus
	Sources capture.Factory

	// Backend receives frames on the CPU path.
	Backend encoder.Backend
	// Stager backs the readback ring on the CPU path. nil uses a HostStager
	// with one step of latency.
	Stager func() ring.Stager

	// NewEncoder and OpenMuxer build the async path. nil selects a
	// StreamEncoder and mux.Open.
	NewEncoder EncoderFactory
	OpenMuxer  MuxerFactory

	Clock pacer.Clock

	log    *slog.Logger // Logger tagged with the session name
	mu     sync.Mutex
	status Status
}

// Session states.
const (
	StateIdle           = "idle"
	StateRecording      = "recording"
	StateReinitializing = "reinitializing"
	StateFinalizing     = "finalizing"
	StateStopped        = "stopped"
	StateFailed         = "failed"
)

// Status is a snapshot of a session.
type Status struct {
	Session        string    `json:"session" example:"default" doc:"Session identifier"`
	State          string    `json:"state" example:"recording" doc:"Session state"`
	Mode           Mode      `json:"mode" example:"cpu" doc:"Encode path"`
	Output         string    `json:"output" example:"capture.mp4" doc:"Configured output"`
	Segment        int       `json:"segment" doc:"Current segment index"`
	Segments       []string  `json:"segments" doc:"Finalized segment paths"`
	FramesCaptured int64     `json:"frames_captured" doc:"Frames acquired from the source"`
	FramesEncoded  int64     `json:"frames_encoded" doc:"Frames handed to the encoder"`
	FramesMissed   int64     `json:"frames_missed" doc:"Ticks without a usable frame"`
	FramesDropped  uint64    `json:"frames_dropped" doc:"Frames discarded by a full encode queue"`
	DeviceLosses   int       `json:"device_losses" doc:"Device losses survived or fatal"`
	StartedAt      time.Time `json:"started_at,omitzero" doc:"Session start"`
	Error          string    `json:"error,omitempty" doc:"Error that ended the session"`
}

// Status returns a copy of the current status.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	st.Segments = append([]string(nil), c.status.Segments...)
	return st
}

func (c *Context) update(fn func(*Status)) {
	c.mu.Lock()
	fn(&c.status)
	c.mu.Unlock()
}

func (c *Context) setState(state string, segment int) {
	c.update(func(s *Status) {
		s.State = state
		s.Segment = segment
	})
	c.Bus.Publish(events.SessionStateChangedEvent{
		Session:   c.Config.Name,
		State:     state,
		Segment:   segment,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	c.log.Debug("Session state changed", "state", state, "segment", segment)
}

func (c *Context) countCaptured() {
	metrics.IncFramesCaptured(c.Config.Name)
	c.update(func(s *Status) { s.FramesCaptured++ })
}

func (c *Context) countEncoded() {
	c.update(func(s *Status) { s.FramesEncoded++ })
}

func (c *Context) countMissed(err error) {
	reason := "no_frame"
	if faults.KindOf(err) == faults.KindResource {
		reason = "busy"
	}
	metrics.IncFramesMissed(c.Config.Name, reason)
	c.update(func(s *Status) { s.FramesMissed++ })
}

func (c *Context) segmentFinalized(path string, frames int64) {
	metrics.IncSegmentsFinalized()
	c.update(func(s *Status) { s.Segments = append(s.Segments, path) })
	c.Bus.Publish(events.SegmentFinalizedEvent{
		Session:   c.Config.Name,
		Path:      path,
		Frames:    frames,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	c.log.Info("Segment finalized", "path", path, "frames", frames)
}

// SegmentPath returns the output of segment n. Segment 0 is output itself;
// later segments insert -n before the extension. Network targets are reused
// as they are.
func SegmentPath(output string, n int) string {
	if n == 0 || isNetworkTarget(output) {
		return output
	}
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(output, ext), n, ext)
}

func isNetworkTarget(target string) bool {
	return strings.Contains(target, "://")
}

// segmentFunc records one segment until the deadline passes, ctx is
// cancelled or an error ends it.
type segmentFunc func(ctx context.Context, segment int, path string, duration time.Duration) error

// Run records with the path selected by the config.
func Run(ctx context.Context, sc *Context) error {
	switch sc.Config.Mode {
	case ModeAsync:
		return NewStreamer(sc).Run(ctx)
	default:
		return NewRecorder(sc).Run(ctx)
	}
}

// run drives the segment loop shared by both paths. A device loss ends the
// current segment; the next one starts with a fresh source until the
// re-initialization attempts are used up.
func (c *Context) run(ctx context.Context, record segmentFunc) error {
	c.Config.applyDefaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.log = c.Logger.With("session", c.Config.Name)
	if c.Clock == nil {
		c.Clock = pacer.SystemClock()
	}
	start := c.Clock.Now()
	c.update(func(s *Status) {
		*s = Status{
			Session:   c.Config.Name,
			Mode:      c.Config.Mode,
			Output:    c.Config.Output,
			StartedAt: start,
		}
	})

	// pending is a device loss not yet followed by a recorded segment. It is
	// the result if the session stops before one starts.
	var pending error
	for segment := 0; ; segment++ {
		var remaining time.Duration
		if c.Config.Duration > 0 {
			remaining = c.Config.Duration - c.Clock.Now().Sub(start)
			if remaining <= 0 {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		c.setState(StateRecording, segment)
		err := record(ctx, segment, SegmentPath(c.Config.Output, segment), remaining)
		if err == nil {
			pending = nil
			break
		}

		if faults.KindOf(err) == faults.KindFatalDevice {
			c.noteDeviceLost(err, segment+1)
		}
		if faults.KindOf(err) != faults.KindFatalDevice || segment >= c.Config.ReinitAttempts {
			return c.fail(err, segment)
		}
		pending = err
		c.setState(StateReinitializing, segment)
		c.log.Warn("Device lost, starting a new segment",
			"error", err,
			"attempt", segment+1,
			"max_attempts", c.Config.ReinitAttempts)
	}

	if pending != nil {
		return c.fail(pending, c.Status().Segment)
	}
	c.setState(StateStopped, c.Status().Segment)
	return nil
}

func (c *Context) fail(err error, segment int) error {
	c.update(func(s *Status) { s.Error = err.Error() })
	c.setState(StateFailed, segment)
	return err
}

func (c *Context) noteDeviceLost(err error, attempt int) {
	metrics.IncDeviceLost(c.Config.Name)
	c.update(func(s *Status) { s.DeviceLosses++ })
	c.Bus.Publish(events.DeviceLostEvent{
		Session:   c.Config.Name,
		Source:    c.Config.Source,
		Attempt:   attempt,
		Error:     err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// openSource opens a fresh source. Failing to open is treated as a device
// loss so it consumes a re-initialization attempt.
func (c *Context) openSource() (capture.Source, error) {
	src, err := c.Sources()
	if err != nil {
		if faults.KindOf(err) == faults.KindFatalConfig {
			return nil, err
		}
		return nil, faults.Wrap(faults.KindFatalDevice, faults.CodeDeviceLost, "open capture source", err)
	}
	return src, nil
}
