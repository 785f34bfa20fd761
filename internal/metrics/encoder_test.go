package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEncoderProgressCache(t *testing.T) {
	session := "test-session-1"
	DeleteEncoderMetrics(session)

	if m := EncoderProgressFor(session); m != nil {
		t.Error("expected nil for unknown session")
	}

	SetEncoderFPS(session, 30.0)
	SetEncoderDropped(session, 5)
	SetEncoderDuplicated(session, 2)
	SetEncoderSpeed(session, 1.5)

	m := EncoderProgressFor(session)
	if m == nil {
		t.Fatal("expected non-nil progress")
	}
	want := EncoderProgress{FPS: 30, DroppedFrames: 5, DuplicateFrames: 2, Speed: 1.5}
	if *m != want {
		t.Errorf("progress = %+v, want %+v", *m, want)
	}

	m.FPS = 999
	if got := EncoderProgressFor(session).FPS; got != 30 {
		t.Errorf("cache was modified through the returned copy, FPS = %v", got)
	}

	if got := testutil.ToFloat64(encoderFPS.WithLabelValues(session)); got != 30 {
		t.Errorf("gauge = %v, want 30", got)
	}

	if _, ok := AllEncoderProgress()[session]; !ok {
		t.Error("session missing from AllEncoderProgress")
	}

	DeleteEncoderMetrics(session)
	if EncoderProgressFor(session) != nil {
		t.Error("expected nil after delete")
	}
}

func TestPipelineCounters(t *testing.T) {
	session := "test-session-2"
	defer DeleteSessionMetrics(session)

	IncFramesCaptured(session)
	IncFramesCaptured(session)
	IncFramesMissed(session, "NO_NEW_FRAME")
	IncDeviceLost(session)
	IncRingOverrun(session)
	ObserveEncode(session, 2*time.Millisecond)

	if got := testutil.ToFloat64(framesCaptured.WithLabelValues(session)); got != 2 {
		t.Errorf("frames captured = %v, want 2", got)
	}
	if got := testutil.ToFloat64(framesMissed.WithLabelValues(session, "NO_NEW_FRAME")); got != 1 {
		t.Errorf("frames missed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(framesEncoded.WithLabelValues(session)); got != 1 {
		t.Errorf("frames encoded = %v, want 1", got)
	}
}

func TestQueueMetrics(t *testing.T) {
	SetQueueDepth("test-encode", 4)
	if got := testutil.ToFloat64(queueDepth.WithLabelValues("test-encode")); got != 4 {
		t.Errorf("depth = %v, want 4", got)
	}

	AddQueueDropped("test-encode", 0)
	AddQueueDropped("test-encode", 3)
	if got := testutil.ToFloat64(queueDropped.WithLabelValues("test-encode")); got != 3 {
		t.Errorf("dropped = %v, want 3", got)
	}
}

func TestMuxMetrics(t *testing.T) {
	AddMuxed("test-mp4", 100)
	AddMuxed("test-mp4", 50)
	if got := testutil.ToFloat64(packetsMuxed.WithLabelValues("test-mp4")); got != 2 {
		t.Errorf("packets = %v, want 2", got)
	}
	if got := testutil.ToFloat64(bytesMuxed.WithLabelValues("test-mp4")); got != 150 {
		t.Errorf("bytes = %v, want 150", got)
	}
}
