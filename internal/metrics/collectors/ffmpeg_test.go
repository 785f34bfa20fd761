package collectors

import (
	"testing"

	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
)

func TestFFmpegProgressParsing(t *testing.T) {
	session := "collector-test"
	c := NewFFmpegProgress(session)
	defer c.Close()

	lines := []string{
		"[libx264 @ 0x55] using cpu capabilities: MMX2",
		"frame=30",
		"fps=29.97",
		"drop_frames=3",
		"dup_frames=1",
		"speed=1.25x",
		"progress=continue",
	}
	for _, l := range lines {
		c.HandleLine("stderr", l)
	}

	if c.Reports() != 1 {
		t.Fatalf("reports = %d, want 1", c.Reports())
	}
	m := metrics.EncoderProgressFor(session)
	if m == nil {
		t.Fatal("no progress recorded")
	}
	want := metrics.EncoderProgress{FPS: 29.97, DroppedFrames: 3, DuplicateFrames: 1, Speed: 1.25}
	if *m != want {
		t.Errorf("progress = %+v, want %+v", *m, want)
	}
}

func TestFFmpegProgressPartialBlock(t *testing.T) {
	session := "collector-partial"
	c := NewFFmpegProgress(session)
	defer c.Close()

	c.HandleLine("stderr", "fps=10")
	if metrics.EncoderProgressFor(session) != nil {
		t.Error("metrics published before the block completed")
	}

	c.HandleLine("stderr", "speed=N/A")
	c.HandleLine("stderr", "progress=end")
	m := metrics.EncoderProgressFor(session)
	if m == nil || m.FPS != 10 || m.Speed != 0 {
		t.Errorf("progress = %+v", m)
	}
}
