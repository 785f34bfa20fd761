package pacer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock advances only when After is called or Advance is used.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPacerStampsElapsedTicks(t *testing.T) {
	clock := newFakeClock()
	p := New(clock, 0)

	if got := p.Stamp(); got != 0 {
		t.Errorf("first stamp = %d", got)
	}
	clock.Advance(33 * time.Millisecond)
	if got := p.Stamp(); got != 330_000 {
		t.Errorf("stamp after 33ms = %d, want 330000", got)
	}
}

func TestPacerNeverDecreases(t *testing.T) {
	clock := newFakeClock()
	p := New(clock, 0)

	clock.Advance(time.Second)
	first := p.Stamp()

	// A clock that steps backwards must not produce an earlier timestamp.
	clock.Advance(-500 * time.Millisecond)
	prev := p.Stamp()
	if prev < first {
		t.Fatalf("stamp decreased: %d < %d", prev, first)
	}

	for i := range 1000 {
		// Long stalls with no frames only back off.
		for range i % 7 {
			if err := p.Backoff(context.Background()); err != nil {
				t.Fatal(err)
			}
		}
		if i%3 == 0 {
			clock.Advance(-time.Duration(i) * time.Microsecond)
		}
		ts := p.Stamp()
		if ts < prev {
			t.Fatalf("iteration %d: %d < %d", i, ts, prev)
		}
		prev = ts
	}
}

func TestPacerBackoffKeepsTimestamp(t *testing.T) {
	clock := newFakeClock()
	p := New(clock, 0)
	clock.Advance(10 * time.Millisecond)
	ts := p.Stamp()

	if err := p.Backoff(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.last != ts {
		t.Errorf("Backoff changed the last timestamp")
	}
	if got := p.Elapsed(); got != 10*time.Millisecond+Backoff {
		t.Errorf("Elapsed = %v", got)
	}
}

func TestPacerBackoffCancelled(t *testing.T) {
	p := New(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Backoff(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Backoff = %v", err)
	}
}

func TestPacerDone(t *testing.T) {
	clock := newFakeClock()
	p := New(clock, time.Second)
	ctx := context.Background()

	if p.Done(ctx) {
		t.Fatal("done at start")
	}
	clock.Advance(999 * time.Millisecond)
	if p.Done(ctx) {
		t.Fatal("done before duration")
	}
	clock.Advance(time.Millisecond)
	if !p.Done(ctx) {
		t.Fatal("not done after duration")
	}

	unbounded := New(clock, 0)
	clock.Advance(time.Hour)
	cctx, cancel := context.WithCancel(ctx)
	if unbounded.Done(cctx) {
		t.Fatal("unbounded pacer done without cancel")
	}
	cancel()
	if !unbounded.Done(cctx) {
		t.Fatal("cancel not observed")
	}
}

func TestFrameCounter(t *testing.T) {
	c := NewFrameCounter(30)
	want := []int64{0, 333333, 666667, 1000000, 1333333}
	for i, w := range want {
		if got := c.Stamp(); got != w {
			t.Errorf("frame %d = %d, want %d", i, got, w)
		}
	}
	if c.n != int64(len(want)) {
		t.Errorf("issued %d timestamps", c.n)
	}
}

func TestFrameIndexRoundTrip(t *testing.T) {
	for _, fps := range []int{24, 25, 30, 60} {
		for n := range int64(500) {
			if got := FrameIndex(FrameTime(n, fps), fps); got != n {
				t.Fatalf("fps %d frame %d maps back to %d", fps, n, got)
			}
		}
	}
	if got := FrameIndex(-5, 30); got != 0 {
		t.Errorf("negative pts index = %d", got)
	}
	if got := FrameDuration(30); got != 333333 {
		t.Errorf("FrameDuration(30) = %d", got)
	}
}
