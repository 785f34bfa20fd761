package ffmpeg

// EncodeParams describes an encoder process that reads raw frames on stdin.
type EncodeParams struct {
	Binary string // ffmpeg executable, DefaultBinary when empty

	// Raw input
	Width       int
	Height      int
	FPS         int
	PixelFormat string // bgra, nv12, yuv420p
	BottomUp    bool   // rows arrive last row first

	// Encoder
	Encoder      string // libx264 when empty
	Bitrate      int    // bits per second, 0 = encoder default
	GOP          int    // keyframe interval in frames, 0 = 2 seconds
	Preset       string // ultrafast ... veryslow
	OutputFormat string // pix_fmt handed to the encoder, yuv420p when empty

	// Output is a file path, or "-" for an Annex-B stream on stdout.
	Output string

	Options []OptionType
}

// IsStream reports whether the encoder writes to stdout.
func (p *EncodeParams) IsStream() bool {
	return p.Output == "-" || p.Output == "pipe:1"
}

// GrabParams describes an x11grab process that writes raw BGRA on stdout.
type GrabParams struct {
	Binary    string
	Display   string // :0.0
	OffsetX   int
	OffsetY   int
	Width     int
	Height    int
	FPS       int
	DrawMouse bool
}
