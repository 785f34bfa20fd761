package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/config"
	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
	"github.com/PZwoodcat/Oleppy-Free/internal/queue"
	"github.com/PZwoodcat/Oleppy-Free/internal/session"
)

func defaultOptions() *config.Options {
	return &config.Options{
		CaptureSource:         "synthetic",
		CaptureFPS:            30,
		CaptureTimeoutMs:      16,
		CaptureReinitAttempts: 3,
		EncodeMode:            "cpu",
		EncodeBackend:         "ffmpeg",
		EncodeBitrate:         8_000_000,
		EncodePixelFormat:     "nv12",
		EncodeFFmpegPath:      "ffmpeg",
		EncodeCodec:           "libx264",
		QueueCapacity:         8,
		QueueOverflowPolicy:   "block",
		OutputPath:            "capture.mp4",
	}
}

func TestBuildSession(t *testing.T) {
	opts := defaultOptions()
	opts.EncodeMode = "async"
	opts.Duration = "90s"
	opts.QueueOverflowPolicy = "drop-oldest"

	sc, err := BuildSession(opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := sc.Config
	if c.Mode != session.ModeAsync || c.Duration != 90*time.Second || c.Policy != queue.DropOldest {
		t.Errorf("config %+v", c)
	}
	if c.PixelFormat != pixfmt.NV12 || c.AcquireTimeout != 16*time.Millisecond || c.Source != "synthetic" {
		t.Errorf("config %+v", c)
	}
	if sc.Sources == nil || sc.Backend == nil {
		t.Fatal("session without source factory or backend")
	}

	src, err := sc.Sources()
	if err != nil {
		t.Fatal(err)
	}
	src.Close()
}

func TestBuildSessionRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Options)
	}{
		{"mode", func(o *config.Options) { o.EncodeMode = "gpu" }},
		{"duration", func(o *config.Options) { o.Duration = "soon" }},
		{"negative duration", func(o *config.Options) { o.Duration = "-1s" }},
		{"policy", func(o *config.Options) { o.QueueOverflowPolicy = "lossy" }},
		{"pixel format", func(o *config.Options) { o.EncodePixelFormat = "yuyv" }},
		{"backend", func(o *config.Options) { o.EncodeBackend = "gstreamer" }},
		{"output", func(o *config.Options) { o.OutputPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			tt.modify(opts)
			_, err := BuildSession(opts, nil)
			if faults.KindOf(err) != faults.KindFatalConfig {
				t.Errorf("BuildSession = %v, want config error", err)
			}
		})
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{"", "*encoder.FFmpegBackend"},
		{"FFmpeg", "*encoder.FFmpegBackend"},
		{"mux", "*encoder.MuxBackend"},
		{"null", "*encoder.NullBackend"},
	}
	for _, tt := range tests {
		opts := defaultOptions()
		opts.EncodeBackend = tt.backend
		b, err := NewBackend(opts)
		if err != nil {
			t.Fatalf("%q: %v", tt.backend, err)
		}
		if got := fmt.Sprintf("%T", b); got != tt.want {
			t.Errorf("%q: got %s, want %s", tt.backend, got, tt.want)
		}
	}
}

func TestNewBackendCarriesCodec(t *testing.T) {
	opts := defaultOptions()
	opts.EncodeCodec = "h264_qsv"
	opts.EncodePreset = "veryfast"

	b, err := NewBackend(opts)
	if err != nil {
		t.Fatal(err)
	}
	ff := b.(*encoder.FFmpegBackend)
	if ff.Encoder != "h264_qsv" || ff.Preset != "veryfast" {
		t.Errorf("ffmpeg backend %q %q", ff.Encoder, ff.Preset)
	}

	opts.EncodeBackend = "mux"
	opts.EncodeMode = "async"
	b, err = NewBackend(opts)
	if err != nil {
		t.Fatal(err)
	}
	if mb := b.(*encoder.MuxBackend); mb.Encoder != "h264_qsv" || mb.Preset != "veryfast" {
		t.Errorf("mux backend %q %q", mb.Encoder, mb.Preset)
	}

	sc, err := BuildSession(opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Config.Encoder != "h264_qsv" || sc.Config.Preset != "veryfast" {
		t.Errorf("session encoder %q %q", sc.Config.Encoder, sc.Config.Preset)
	}
}

func TestResolveCodec(t *testing.T) {
	orig := listEncoders
	defer func() { listEncoders = orig }()

	list := []encoder.Info{
		{Name: "mpeg4"},
		{Name: "libx264", H264: true},
		{Name: "h264_nvenc", H264: true, HWAccel: true},
	}
	var listErr error
	listEncoders = func(context.Context, string) ([]encoder.Info, error) {
		return list, listErr
	}

	opts := defaultOptions()
	opts.EncodeCodec = "libx264"
	ResolveCodec(context.Background(), opts)
	if opts.EncodeCodec != "libx264" {
		t.Errorf("explicit codec changed to %q", opts.EncodeCodec)
	}

	want, _ := encoder.SelectH264(list)
	opts.EncodeCodec = "Auto"
	ResolveCodec(context.Background(), opts)
	if opts.EncodeCodec != want.Name {
		t.Errorf("auto resolved to %q, want %q", opts.EncodeCodec, want.Name)
	}

	listErr = errors.New("ffmpeg not found")
	opts.EncodeCodec = "auto"
	ResolveCodec(context.Background(), opts)
	if opts.EncodeCodec != "" {
		t.Errorf("failed probe resolved to %q", opts.EncodeCodec)
	}
}

func TestParseDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{"": 0, " ": 0, "10s": 10 * time.Second, "1h30m": 90 * time.Minute} {
		got, err := ParseDuration(in)
		if err != nil || got != want {
			t.Errorf("ParseDuration(%q) = %v, %v", in, got, err)
		}
	}
}
