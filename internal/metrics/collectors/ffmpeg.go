// Package collectors turns subprocess output into metrics.
package collectors

import (
	"strconv"
	"strings"
	"sync"

	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
)

// FFmpegProgress collects the key=value blocks ffmpeg writes with
// `-progress pipe:2`. It is installed as the encoder process output handler.
type FFmpegProgress struct {
	session string

	mu      sync.Mutex
	pending map[string]string
	reports int
}

// NewFFmpegProgress creates a collector that reports under session.
func NewFFmpegProgress(session string) *FFmpegProgress {
	return &FFmpegProgress{
		session: session,
		pending: make(map[string]string),
	}
}

// HandleLine consumes one output line. Lines that are not key=value pairs
// are ignored.
func (f *FFmpegProgress) HandleLine(_, line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || key == "" || strings.ContainsAny(key, " \t[") {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending[strings.TrimSpace(key)] = strings.TrimSpace(value)
	if key == "progress" {
		f.publish(f.pending)
		f.pending = make(map[string]string)
		f.reports++
	}
}

// Reports returns the number of complete progress blocks seen.
func (f *FFmpegProgress) Reports() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports
}

// Close removes the session's encoder metrics.
func (f *FFmpegProgress) Close() {
	metrics.DeleteEncoderMetrics(f.session)
}

func (f *FFmpegProgress) publish(data map[string]string) {
	if fps, err := strconv.ParseFloat(data["fps"], 64); err == nil {
		metrics.SetEncoderFPS(f.session, fps)
	}
	if dropped, err := strconv.ParseFloat(data["drop_frames"], 64); err == nil {
		metrics.SetEncoderDropped(f.session, dropped)
	}
	if dup, err := strconv.ParseFloat(data["dup_frames"], 64); err == nil {
		metrics.SetEncoderDuplicated(f.session, dup)
	}
	speed := strings.TrimSpace(strings.TrimSuffix(data["speed"], "x"))
	if v, err := strconv.ParseFloat(speed, 64); err == nil {
		metrics.SetEncoderSpeed(f.session, v)
	}
}
