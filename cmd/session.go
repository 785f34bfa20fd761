package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
	"github.com/PZwoodcat/Oleppy-Free/internal/config"
	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
	"github.com/PZwoodcat/Oleppy-Free/internal/events"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
	"github.com/PZwoodcat/Oleppy-Free/internal/queue"
	"github.com/PZwoodcat/Oleppy-Free/internal/session"
)

// sessionName labels metrics and events of the process-wide session.
const sessionName = "default"

// autoCodec asks ffmpeg for the preferred H.264 encoder at startup.
const autoCodec = "auto"

// listEncoders lists the encoders of an ffmpeg binary.
var listEncoders = encoder.Probe

// ResolveCodec replaces an "auto" codec in opts with the H.264 encoder
// SelectH264 prefers. If ffmpeg cannot be asked, the default encoder is used.
func ResolveCodec(ctx context.Context, opts *config.Options) {
	if !strings.EqualFold(strings.TrimSpace(opts.EncodeCodec), autoCodec) {
		return
	}
	logger := logging.GetLogger("encoder")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	list, err := listEncoders(ctx, opts.EncodeFFmpegPath)
	if err != nil {
		logger.Warn("Listing ffmpeg encoders failed, using default encoder", "error", err)
		opts.EncodeCodec = ""
		return
	}
	best, ok := encoder.SelectH264(list)
	if !ok {
		logger.Warn("ffmpeg lists no H.264 encoder, using default encoder")
		opts.EncodeCodec = ""
		return
	}
	logger.Info("Selected H.264 encoder", "encoder", best.Name, "hwaccel", best.HWAccel)
	opts.EncodeCodec = best.Name
}

// codec returns the configured encoder name, "" for the default.
func codec(opts *config.Options) string {
	c := strings.TrimSpace(opts.EncodeCodec)
	if strings.EqualFold(c, autoCodec) {
		return ""
	}
	return c
}

// ParseDuration reads a recording length. Empty means unbounded.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "invalid duration").
			With("duration", s)
	}
	return d, nil
}

// CaptureOptions converts the capture settings of opts.
func CaptureOptions(opts *config.Options) capture.Options {
	return capture.Options{
		Kind:         capture.Kind(strings.ToLower(opts.CaptureSource)),
		Display:      opts.CaptureDisplay,
		X11Display:   opts.CaptureX11Display,
		Width:        opts.CaptureWidth,
		Height:       opts.CaptureHeight,
		FPS:          opts.CaptureFPS,
		FFmpegBinary: opts.EncodeFFmpegPath,
	}
}

// NewBackend returns the CPU path backend named by opts.EncodeBackend.
func NewBackend(opts *config.Options) (encoder.Backend, error) {
	switch strings.ToLower(opts.EncodeBackend) {
	case "", "ffmpeg":
		return &encoder.FFmpegBackend{
			Binary:  opts.EncodeFFmpegPath,
			Encoder: codec(opts),
			Preset:  opts.EncodePreset,
			Session: sessionName,
			Logger:  logging.GetLogger("encoder"),
		}, nil
	case "mux":
		return &encoder.MuxBackend{
			Binary:  opts.EncodeFFmpegPath,
			Encoder: codec(opts),
			Preset:  opts.EncodePreset,
			Session: sessionName,
			RawH264: opts.OutputRawH264,
			Logger:  logging.GetLogger("encoder"),
		}, nil
	case "null":
		return &encoder.NullBackend{}, nil
	default:
		return nil, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "unknown encoder backend").
			With("backend", opts.EncodeBackend)
	}
}

// BuildSession validates opts and assembles the session they describe.
func BuildSession(opts *config.Options, bus *events.Bus) (*session.Context, error) {
	mode, err := session.ParseMode(opts.EncodeMode)
	if err != nil {
		return nil, err
	}
	duration, err := ParseDuration(opts.Duration)
	if err != nil {
		return nil, err
	}
	policy, err := queue.ParsePolicy(opts.QueueOverflowPolicy)
	if err != nil {
		return nil, faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "invalid overflow policy", err)
	}
	format, err := pixfmt.Parse(opts.EncodePixelFormat)
	if err != nil {
		return nil, err
	}
	backend, err := NewBackend(opts)
	if err != nil {
		return nil, err
	}
	if opts.OutputPath == "" {
		return nil, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "no output path")
	}

	captureOpts := CaptureOptions(opts)
	return &session.Context{
		Config: session.Config{
			Name:           sessionName,
			Source:         string(captureOpts.Kind),
			Mode:           mode,
			Output:         opts.OutputPath,
			FPS:            opts.CaptureFPS,
			Bitrate:        opts.EncodeBitrate,
			ConstantRate:   opts.EncodeConstantRate,
			Duration:       duration,
			AcquireTimeout: time.Duration(opts.CaptureTimeoutMs) * time.Millisecond,
			ReinitAttempts: opts.CaptureReinitAttempts,
			PixelFormat:    format,
			QueueCapacity:  opts.QueueCapacity,
			Policy:         policy,
			RawH264:        opts.OutputRawH264,
			FFmpegBinary:   opts.EncodeFFmpegPath,
			Encoder:        codec(opts),
			Preset:         opts.EncodePreset,
		},
		Logger:  logging.GetLogger("session"),
		Bus:     bus,
		Sources: capture.NewFactory(captureOpts, logging.GetLogger("capture")),
		Backend: backend,
	}, nil
}

// InitLogging applies the logging settings of opts.
func InitLogging(opts *config.Options) {
	logging.Initialize(logging.Config{
		Level:   opts.LoggingLevel,
		Format:  opts.LoggingFormat,
		Modules: opts.LoggingModules(),
	})
}

func describe(sc *session.Context) string {
	c := sc.Config
	return fmt.Sprintf("%s %s@%dfps -> %s", c.Mode, c.Source, c.FPS, c.Output)
}
