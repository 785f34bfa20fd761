package ring

import (
	"errors"
	"sync"
	"testing"

	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
)

func solidFrame(v byte, seq uint64) *capture.Frame {
	f := capture.NewFrame(4, 4, pixfmt.BGRA)
	for i := range f.Data {
		f.Data[i] = v
	}
	f.Seq = seq
	f.PTS = int64(seq) * 333333
	return f
}

func TestCopyRingLatest(t *testing.T) {
	r := NewCopyRing()

	if _, _, ok := r.Latest(); ok {
		t.Fatal("empty ring reported a frame")
	}

	r.Publish(solidFrame(1, 1))
	f, seq, ok := r.Latest()
	if !ok || seq != 1 || f.Data[0] != 1 {
		t.Fatalf("Latest = %v %d %v", f, seq, ok)
	}

	// Nothing new published: no frame.
	if _, _, ok := r.Latest(); ok {
		t.Fatal("same publish reported as new twice")
	}

	r.Publish(solidFrame(2, 2))
	f, seq, ok = r.Latest()
	if !ok || seq != 2 || f.Data[0] != 2 || f.PTS != 2*333333 {
		t.Fatalf("second Latest = %d %v", seq, ok)
	}
	if r.Overrun() != 0 {
		t.Errorf("Overrun = %d", r.Overrun())
	}
}

func TestCopyRingCopiesFrame(t *testing.T) {
	r := NewCopyRing()
	src := solidFrame(7, 1)
	r.Publish(src)

	// The source buffer is reusable as soon as Publish returns.
	src.Data[0] = 99

	f, _, _ := r.Latest()
	if f.Data[0] != 7 {
		t.Errorf("ring aliases the source buffer")
	}
}

func TestCopyRingOverrun(t *testing.T) {
	r := NewCopyRing()
	r.Publish(solidFrame(1, 1))
	r.Latest()

	for i := byte(2); i <= 5; i++ {
		r.Publish(solidFrame(i, uint64(i)))
	}
	f, seq, ok := r.Latest()
	if !ok || seq != 5 || f.Data[0] != 5 {
		t.Fatalf("Latest after lap = %d %v", seq, ok)
	}
	if got := r.Overrun(); got != 3 {
		t.Errorf("Overrun = %d, want 3", got)
	}

	r.Reset()
	if _, _, ok := r.Latest(); ok || r.Overrun() != 0 {
		t.Error("Reset kept state")
	}
	r.Publish(solidFrame(9, 1))
	if f, seq, ok := r.Latest(); !ok || seq != 1 || f.Data[0] != 9 {
		t.Errorf("Latest after Reset = %d %v", seq, ok)
	}
}

func TestCopyRingReportsSlotSequence(t *testing.T) {
	r := NewCopyRing()
	for i := byte(1); i <= 4; i++ {
		r.Publish(solidFrame(i, uint64(i)))
	}

	// Model a consumer that loaded the counter at 1 while the producer went
	// on to refill slot 0 with frame 4.
	r.seq.Store(1)
	f, seq, ok := r.Latest()
	if !ok || seq != 4 || f.Data[0] != 4 {
		t.Fatalf("Latest = %d %v, content %d", seq, ok, f.Data[0])
	}

	r.seq.Store(4)
	if _, _, ok := r.Latest(); ok {
		t.Error("frame 4 reported twice")
	}
}

func TestCopyRingConcurrentContentMatchesSeq(t *testing.T) {
	r := NewCopyRing()
	const frames = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= frames; i++ {
			r.Publish(solidFrame(byte(i), uint64(i)))
		}
	}()

	var last uint64
	for last < frames {
		f, seq, ok := r.Latest()
		if !ok {
			continue
		}
		if seq <= last {
			t.Fatalf("seq %d after %d", seq, last)
		}
		if f.Seq != seq || f.Data[0] != byte(seq) {
			t.Fatalf("seq %d carries frame %d", seq, f.Seq)
		}
		last = seq
	}
	wg.Wait()
}

func TestCopyRingSlowProducer(t *testing.T) {
	r := NewCopyRing()
	const frames = 200

	var wg sync.WaitGroup
	publish := make(chan struct{})
	consumed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= frames; i++ {
			<-publish
			r.Publish(solidFrame(byte(i), uint64(i)))
			consumed <- struct{}{}
		}
	}()

	var last uint64
	for i := 1; i <= frames; i++ {
		publish <- struct{}{}
		<-consumed
		f, seq, ok := r.Latest()
		if !ok {
			t.Fatalf("frame %d not reported", i)
		}
		if seq <= last {
			t.Fatalf("seq %d after %d", seq, last)
		}
		if f.Data[0] != byte(i) || f.Seq != uint64(i) {
			t.Fatalf("frame %d has content %d", i, f.Data[0])
		}
		if _, _, ok := r.Latest(); ok {
			t.Fatalf("frame %d reported twice", i)
		}
		last = seq
	}
	wg.Wait()

	if r.Overrun() != 0 {
		t.Errorf("Overrun = %d", r.Overrun())
	}
}

// rowIndexFrame fills row i with value i.
func rowIndexFrame(w, h int) *capture.Frame {
	f := capture.NewFrame(w, h, pixfmt.BGRA)
	for y := 0; y < h; y++ {
		row := f.Row(y)
		for i := range row {
			row[i] = byte(y)
		}
	}
	return f
}

func TestReadbackFlip(t *testing.T) {
	const w, h = 5, 6 // pitch 256 > 20 bytes
	stager := NewHostStager(0)
	rb := NewReadbackRing(stager)

	src := rowIndexFrame(w, h)
	src.Seq = 1

	if _, err := rb.Step(src); !errors.Is(err, ErrNotReady) || !faults.IsRetryable(err) {
		t.Fatalf("first step: %v", err)
	}

	next := rowIndexFrame(w, h)
	next.Seq = 2
	out, err := rb.Step(next)
	if err != nil {
		t.Fatal(err)
	}

	if out.Seq != 1 {
		t.Errorf("read back seq %d, want 1 (one tick behind)", out.Seq)
	}
	if out.Stride != w*4 || len(out.Data) != w*h*4 {
		t.Fatalf("stride=%d len=%d", out.Stride, len(out.Data))
	}
	for y := 0; y < h; y++ {
		want := byte(h - 1 - y)
		for i, b := range out.Row(y) {
			if b != want {
				t.Fatalf("output row %d byte %d = %d, want %d", y, i, b, want)
			}
		}
	}
}

func TestReadbackPaddedSource(t *testing.T) {
	src := capture.NewSyntheticSource(capture.SyntheticOptions{Width: 3, Height: 4, Stride: 64})
	rb := NewReadbackRing(NewHostStager(1))

	var out *capture.Frame
	for range 2 {
		f, err := src.AcquireFrame(capture.DefaultTimeout)
		if err != nil {
			t.Fatal(err)
		}
		out, err = rb.Step(f)
		src.ReleaseFrame()
		if err != nil && !errors.Is(err, ErrNotReady) {
			t.Fatal(err)
		}
	}
	if out == nil {
		t.Fatal("no frame after two steps")
	}
	if out.Row(0)[0] != 3 || out.Row(3)[0] != 0 {
		t.Errorf("rows not flipped: first=%d last=%d", out.Row(0)[0], out.Row(3)[0])
	}
}

func TestReadbackBusyNeverBlocks(t *testing.T) {
	rb := NewReadbackRing(NewHostStager(2))
	src := rowIndexFrame(2, 2)

	rb.Step(src)
	for i := range 5 {
		_, err := rb.Step(src)
		if !errors.Is(err, ErrMapBusy) {
			t.Fatalf("step %d: %v", i, err)
		}
		if faults.KindOf(err) != faults.KindResource {
			t.Fatalf("kind %s", faults.KindOf(err))
		}
	}

	rb.Reset()
	if _, err := rb.Step(src); !errors.Is(err, ErrNotReady) {
		t.Errorf("after Reset: %v", err)
	}
}

func TestHostStagerRejectsPlanar(t *testing.T) {
	s := NewHostStager(0)
	f := capture.NewFrame(4, 4, pixfmt.NV12)
	if err := s.Stage(0, f); faults.KindOf(err) != faults.KindFatalConfig {
		t.Errorf("expected config error, got %v", err)
	}
}
