// Package pacer assigns presentation timestamps to captured frames.
//
// Timestamps are in 100ns ticks. The capture loop uses a Pacer, whose
// timestamps follow a monotonic clock from the session start. The async
// pipeline uses a FrameCounter, whose timestamps follow the frame index at a
// fixed rate. Both satisfy Timeline, so encoders and muxers see one domain.
package pacer

import (
	"context"
	"time"
)

// TicksPerSecond is the timestamp resolution.
const TicksPerSecond = 10_000_000

// Backoff is how long the capture loop sleeps when no frame was available.
const Backoff = 5 * time.Millisecond

// Clock is the time source of a Pacer.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the process monotonic clock.
func SystemClock() Clock {
	return systemClock{}
}

// Timeline produces the presentation time of the next frame.
type Timeline interface {
	// Stamp returns the next timestamp in ticks. Successive values never
	// decrease.
	Stamp() int64
}

// Ticks converts a duration to 100ns ticks.
func Ticks(d time.Duration) int64 {
	return int64(d / 100)
}

// Pacer is the wall-clock Timeline of the capture loop.
type Pacer struct {
	clock    Clock
	start    time.Time
	last     int64
	duration time.Duration
}

// New returns a pacer started now. A zero duration runs until the context
// passed to Done is cancelled.
func New(clock Clock, duration time.Duration) *Pacer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Pacer{clock: clock, start: clock.Now(), duration: duration}
}

// Stamp implements Timeline. The result is the elapsed time since the start,
// clamped so it is never below a previously returned value.
func (p *Pacer) Stamp() int64 {
	ts := Ticks(p.clock.Now().Sub(p.start))
	if ts < p.last {
		ts = p.last
	}
	p.last = ts
	return ts
}

// Elapsed returns the time since the start.
func (p *Pacer) Elapsed() time.Duration {
	return p.clock.Now().Sub(p.start)
}

// Done reports whether the session should stop: the context was cancelled or
// the configured duration has passed.
func (p *Pacer) Done(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return p.duration > 0 && p.Elapsed() >= p.duration
}

// Backoff waits the fixed back-off interval without touching timestamp state.
// It returns early with the context error when ctx is cancelled.
func (p *Pacer) Backoff(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(Backoff):
		return nil
	}
}

// FrameCounter is the fixed-rate Timeline of the async pipeline: frame n is
// stamped n*TicksPerSecond/fps, rounded to the nearest tick.
type FrameCounter struct {
	fps int
	n   int64
}

// NewFrameCounter returns a counter starting at frame 0.
func NewFrameCounter(fps int) *FrameCounter {
	return &FrameCounter{fps: max(fps, 1)}
}

// Stamp implements Timeline.
func (c *FrameCounter) Stamp() int64 {
	ts := FrameTime(c.n, c.fps)
	c.n++
	return ts
}

// FrameTime returns the timestamp of frame n at fps.
func FrameTime(n int64, fps int) int64 {
	f := int64(max(fps, 1))
	return (n*TicksPerSecond + f/2) / f
}

// FrameDuration returns one frame period in ticks.
func FrameDuration(fps int) int64 {
	return FrameTime(1, fps)
}

// FrameIndex maps a timestamp onto the 1/fps time base, rounding to the
// nearest frame.
func FrameIndex(ts int64, fps int) int64 {
	if ts <= 0 {
		return 0
	}
	f := int64(max(fps, 1))
	return (ts*f + TicksPerSecond/2) / TicksPerSecond
}

var (
	_ Timeline = (*Pacer)(nil)
	_ Timeline = (*FrameCounter)(nil)
)
