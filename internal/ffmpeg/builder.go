package ffmpeg

import (
	"fmt"
	"strings"
)

// Base returns the ffmpeg command with standard flags. level+ prefixes every
// log line with its level so ParseLogLevel can classify it.
func Base(binary string) string {
	if binary == "" {
		binary = DefaultBinary
	}
	return quoteArg(binary) + " -hide_banner -loglevel level+info"
}

// BuildEncodeCommand builds an ffmpeg command that encodes raw frames read
// from stdin to H.264. The output has 1:1 pixel aspect and progressive scan.
func BuildEncodeCommand(p *EncodeParams) (string, error) {
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
		return "", fmt.Errorf("invalid stream geometry %dx%d@%d", p.Width, p.Height, p.FPS)
	}
	if p.Output == "" {
		return "", fmt.Errorf("missing output")
	}
	if err := ValidateOptions(p.Options, p.IsStream()); err != nil {
		return "", err
	}

	var cmd strings.Builder
	cmd.WriteString(Base(p.Binary))
	cmd.WriteString(" -y")

	pixFmt := p.PixelFormat
	if pixFmt == "" {
		pixFmt = "bgra"
	}
	fmt.Fprintf(&cmd, " -f rawvideo -pix_fmt %s -video_size %dx%d -framerate %d -i pipe:0",
		pixFmt, p.Width, p.Height, p.FPS)

	encoder := p.Encoder
	if encoder == "" {
		encoder = DefaultEncoder
	}
	outFmt := p.OutputFormat
	if outFmt == "" {
		outFmt = "yuv420p"
	}
	if p.BottomUp {
		cmd.WriteString(" -vf vflip,setsar=1:1")
	} else {
		cmd.WriteString(" -vf setsar=1:1")
	}
	cmd.WriteString(" -c:v " + encoder)
	cmd.WriteString(" -pix_fmt " + outFmt)
	cmd.WriteString(" -field_order progressive")
	if p.Preset != "" {
		cmd.WriteString(" -preset " + p.Preset)
	}
	if p.Bitrate > 0 {
		fmt.Fprintf(&cmd, " -b:v %d -maxrate %d -bufsize %d", p.Bitrate, p.Bitrate, p.Bitrate*2)
	}
	gop := p.GOP
	if gop <= 0 {
		gop = p.FPS * 2
	}
	fmt.Fprintf(&cmd, " -g %d", gop)

	ApplyOptionsToCommand(p.Options, encoder, &cmd)

	if p.IsStream() {
		cmd.WriteString(" -f h264 pipe:1")
	} else {
		cmd.WriteString(" " + quoteArg(p.Output))
	}
	return cmd.String(), nil
}

// BuildGrabCommand builds an ffmpeg command that captures an X11 display and
// writes tightly packed BGRA frames to stdout.
func BuildGrabCommand(p *GrabParams) (string, error) {
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
		return "", fmt.Errorf("invalid grab geometry %dx%d@%d", p.Width, p.Height, p.FPS)
	}
	display := p.Display
	if display == "" {
		display = ":0.0"
	}
	drawMouse := 0
	if p.DrawMouse {
		drawMouse = 1
	}

	var cmd strings.Builder
	cmd.WriteString(Base(p.Binary))
	fmt.Fprintf(&cmd, " -f x11grab -draw_mouse %d -framerate %d -video_size %dx%d -i %s",
		drawMouse, p.FPS, p.Width, p.Height, quoteArg(fmt.Sprintf("%s+%d,%d", display, p.OffsetX, p.OffsetY)))
	cmd.WriteString(" -f rawvideo -pix_fmt bgra pipe:1")
	return cmd.String(), nil
}

// quoteArg escapes s for the process package command parser.
func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '"' || r == '\'' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
