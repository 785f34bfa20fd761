package encoder

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/PZwoodcat/Oleppy-Free/internal/ffmpeg"
)

// Info describes one video encoder compiled into ffmpeg.
type Info struct {
	Name        string `json:"name" example:"libx264" doc:"Encoder name for -c:v"`
	Description string `json:"description" doc:"ffmpeg description"`
	HWAccel     bool   `json:"hwaccel" doc:"Hardware accelerated"`
	H264        bool   `json:"h264" doc:"Produces H.264"`
}

var (
	encoderLine = regexp.MustCompile(`^\s*([VASFXBD\.]{6})\s+(\S+)\s+(.+)$`)
	hwaccelName = regexp.MustCompile(`(?i)(nvenc|qsv|amf|vaapi|videotoolbox|v4l2m2m|rkmpp|mediacodec|omx|d3d12va)`)
)

// h264Preference orders H.264 encoders for SelectH264. Software first: its
// output does not depend on the driver.
var h264Preference = []string{
	"libx264",
	"h264_nvenc",
	"h264_qsv",
	"h264_amf",
	"h264_vaapi",
	"h264_videotoolbox",
	"h264_v4l2m2m",
}

// Probe lists the video encoders of the ffmpeg at binary.
func Probe(ctx context.Context, binary string) ([]Info, error) {
	if binary == "" {
		binary = ffmpeg.DefaultBinary
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("list encoders: %w", err)
	}
	return ParseEncoders(string(out))
}

// ParseEncoders parses `ffmpeg -encoders` output and returns the video
// encoders.
func ParseEncoders(output string) ([]Info, error) {
	var result []Info
	started := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !started {
			// The legend ends with a dashed separator line.
			if strings.HasPrefix(strings.TrimSpace(line), "------") {
				started = true
			}
			continue
		}
		m := encoderLine.FindStringSubmatch(line)
		if m == nil || m[1][0] != 'V' {
			continue
		}
		name, desc := m[2], strings.TrimSpace(m[3])
		result = append(result, Info{
			Name:        name,
			Description: desc,
			HWAccel:     hwaccelName.MatchString(name),
			H264:        strings.Contains(name, "264") || strings.Contains(desc, "H.264"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read encoder list: %w", err)
	}
	return result, nil
}

// SelectH264 picks the preferred H.264 encoder from list.
func SelectH264(list []Info) (Info, bool) {
	byName := make(map[string]Info, len(list))
	for _, e := range list {
		byName[e.Name] = e
	}
	for _, name := range h264Preference {
		if e, ok := byName[name]; ok {
			return e, true
		}
	}
	for _, e := range list {
		if e.H264 {
			return e, true
		}
	}
	return Info{}, false
}
