package ffmpeg

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultBinary is the ffmpeg executable used when none is configured.
const DefaultBinary = "ffmpeg"

// DefaultEncoder is the H.264 encoder used when none is configured.
const DefaultEncoder = "libx264"

// OptionType is a behaviour flag for generated encoder commands.
type OptionType string

// Encoder option flags.
const (
	// OptionLowLatency tunes x264 for zero frame delay. Other encoders
	// ignore it.
	OptionLowLatency OptionType = "low_latency"
	// OptionAccessUnitDelimiters puts an AUD before every frame, through
	// x264 itself or the h264_metadata bitstream filter.
	OptionAccessUnitDelimiters OptionType = "aud"
	// OptionNoBFrames disables B-frames so output order equals input order.
	OptionNoBFrames OptionType = "no_bframes"
	// OptionFastStart moves the MP4 index to the front of the file.
	OptionFastStart OptionType = "faststart"
	// OptionProgress writes key=value progress blocks to stderr.
	OptionProgress OptionType = "progress"
)

// Option describes a flag and the arguments it adds.
type Option struct {
	Key         OptionType `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Args        []string   `json:"args"`
	// OtherArgs replace Args for encoders other than libx264. Args that only
	// libx264 understands leave this empty.
	OtherArgs []string `json:"other_args,omitempty"`
	X264Only  bool     `json:"x264_only,omitempty"`
	// StreamOnly options are only meaningful when encoding to a pipe.
	StreamOnly bool `json:"stream_only"`
	// FileOnly options are only meaningful when encoding to a seekable file.
	FileOnly bool `json:"file_only"`
}

// AllOptions lists every supported flag in the order it is applied.
var AllOptions = []Option{
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency",
		Description: "Disable lookahead and frame threading delay",
		Args:        []string{"-tune", "zerolatency"},
		X264Only:    true,
	},
	{
		Key:         OptionNoBFrames,
		Name:        "No B-frames",
		Description: "One packet out per frame in, in presentation order",
		Args:        []string{"-bf", "0"},
	},
	{
		Key:         OptionAccessUnitDelimiters,
		Name:        "Access Unit Delimiters",
		Description: "Mark every access unit so the stream can be split without parsing slices",
		Args:        []string{"-x264-params", "aud=1"},
		OtherArgs:   []string{"-bsf:v", "h264_metadata=aud=insert"},
		X264Only:    true,
		StreamOnly:  true,
	},
	{
		Key:         OptionFastStart,
		Name:        "Fast Start",
		Description: "Relocate the moov atom after encoding",
		Args:        []string{"-movflags", "+faststart"},
		FileOnly:    true,
	},
	{
		Key:         OptionProgress,
		Name:        "Progress",
		Description: "Report fps, dup and drop counters on stderr",
		Args:        []string{"-progress", "pipe:2", "-nostats"},
	},
}

// GetOptionByKey returns an option by its key.
func GetOptionByKey(key OptionType) *Option {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i]
		}
	}
	return nil
}

// ValidateOptions rejects unknown keys and options that do not apply to the
// output kind.
func ValidateOptions(selected []OptionType, stream bool) error {
	for _, key := range selected {
		opt := GetOptionByKey(key)
		if opt == nil {
			return fmt.Errorf("unknown ffmpeg option %q", key)
		}
		if stream && opt.FileOnly {
			return fmt.Errorf("option %q requires a file output", key)
		}
		if !stream && opt.StreamOnly {
			return fmt.Errorf("option %q requires a stream output", key)
		}
	}
	return nil
}

// ApplyOptionsToCommand appends the arguments of the selected options in
// AllOptions order, as understood by encoder.
func ApplyOptionsToCommand(selected []OptionType, encoder string, cmd *strings.Builder) {
	for _, opt := range AllOptions {
		if !slices.Contains(selected, opt.Key) {
			continue
		}
		for _, arg := range opt.ArgsFor(encoder) {
			cmd.WriteString(" " + arg)
		}
	}
}

// ArgsFor returns the arguments of o for encoder.
func (o *Option) ArgsFor(encoder string) []string {
	if o.X264Only && encoder != DefaultEncoder {
		return o.OtherArgs
	}
	return o.Args
}
