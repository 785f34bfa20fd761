package config

// Options is the flat CLI/env/TOML option set shared by the service root and
// the record subcommand. Durations are strings so humacli can bind them.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"oleppy.toml"`

	// Status API
	Port       string `help:"Status API listen address" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	APIEnabled bool   `help:"Serve the status API while recording" default:"true" toml:"server.enabled" env:"SERVER_ENABLED"`

	// Capture
	CaptureSource         string `help:"Frame source (screen, x11grab, synthetic)" default:"screen" toml:"capture.source" env:"CAPTURE_SOURCE"`
	CaptureDisplay        int    `help:"Display index for the screen source" default:"0" toml:"capture.display" env:"CAPTURE_DISPLAY"`
	CaptureX11Display     string `help:"X11 display for the x11grab source" default:":0.0" toml:"capture.x11_display" env:"CAPTURE_X11_DISPLAY"`
	CaptureWidth          int    `help:"Capture width, 0 uses the display size" default:"0" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight         int    `help:"Capture height, 0 uses the display size" default:"0" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CaptureFPS            int    `help:"Capture and output frame rate" default:"30" toml:"capture.fps" env:"CAPTURE_FPS"`
	CaptureTimeoutMs      int    `help:"Frame acquire timeout in milliseconds" default:"16" toml:"capture.timeout_ms" env:"CAPTURE_TIMEOUT_MS"`
	CaptureReinitAttempts int    `help:"Source re-creations allowed after device loss" default:"3" toml:"capture.reinit_attempts" env:"CAPTURE_REINIT_ATTEMPTS"`

	// Encode
	EncodeMode          string `help:"Encode path (cpu, async)" default:"cpu" toml:"encode.mode" env:"ENCODE_MODE"`
	EncodeBackend       string `help:"CPU path encoder backend (ffmpeg, mux, null)" default:"ffmpeg" toml:"encode.backend" env:"ENCODE_BACKEND"`
	EncodeBitrate       int    `help:"Target average bit rate in bits per second" default:"8000000" toml:"encode.bitrate" env:"ENCODE_BITRATE"`
	EncodeConstantRate  bool   `help:"Write fixed per-frame durations" default:"false" toml:"encode.constant_rate" env:"ENCODE_CONSTANT_RATE"`
	EncodePixelFormat   string `help:"Encoder input pixel format on the async path" default:"nv12" toml:"encode.pixel_format" env:"ENCODE_PIXEL_FORMAT"`
	EncodeFFmpegPath    string `help:"ffmpeg executable" default:"ffmpeg" toml:"encode.ffmpeg_path" env:"ENCODE_FFMPEG_PATH"`
	EncodeCodec         string `help:"ffmpeg H.264 encoder, auto picks the preferred one ffmpeg lists" default:"libx264" toml:"encode.codec" env:"ENCODE_CODEC"`
	EncodePreset        string `help:"Encoder preset, empty keeps the encoder default" default:"" toml:"encode.preset" env:"ENCODE_PRESET"`
	QueueCapacity       int    `help:"Encode and mux queue capacity" default:"8" toml:"pipeline.queue_capacity" env:"PIPELINE_QUEUE_CAPACITY"`
	QueueOverflowPolicy string `help:"Queue overflow policy (block, drop-oldest, drop-newest)" default:"block" toml:"pipeline.overflow_policy" env:"PIPELINE_OVERFLOW_POLICY"`

	// Output
	OutputPath    string `help:"Output file or rtp:// target" short:"o" default:"capture.mp4" toml:"output.path" env:"OUTPUT_PATH"`
	OutputRawH264 bool   `help:"Also write the raw H.264 stream next to the container (mux backend and async mode)" default:"false" toml:"output.raw_h264" env:"OUTPUT_RAW_H264"`
	Duration      string `help:"Recording length, empty records until interrupted" default:"" toml:"session.duration" env:"SESSION_DURATION"`

	// Logging
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture  string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingEncoder  string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingFFmpeg   string `help:"ffmpeg output logging level" default:"warn" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// LoggingModules returns the per-module levels carried by the options.
func (o *Options) LoggingModules() map[string]string {
	return map[string]string{
		"capture":  o.LoggingCapture,
		"pipeline": o.LoggingPipeline,
		"encoder":  o.LoggingEncoder,
		"ffmpeg":   o.LoggingFFmpeg,
		"api":      o.LoggingAPI,
	}
}
