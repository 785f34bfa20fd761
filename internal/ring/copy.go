// Package ring holds the fixed three-slot buffers between capture and encode.
//
// CopyRing decouples the capture cadence from the consumer: the producer
// copies every acquired frame into the next slot and publishes its sequence
// number, the consumer reads the most recently completed slot. ReadbackRing
// adds a staged device-to-host copy whose map step never blocks and which
// returns frames one tick behind the newest copy.
package ring

import (
	"sync"
	"sync/atomic"

	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
)

// Slots is the slot count of every ring: one slot being written, one
// complete and readable, one idle.
const Slots = 3

// CopyRing is a single-producer single-consumer frame ring.
//
// The producer copies into slot seq%Slots and then stores seq+1 with release
// ordering, so Latest never reads a slot whose copy has not finished. Each slot
// also carries a lock which Latest takes while copying out, so a producer that
// laps the consumer waits for that copy instead of tearing it. A slot records
// the sequence number of the frame it holds; Latest reports that number, not
// the counter it loaded, since the producer may have refilled the slot in
// between.
type CopyRing struct {
	slots [Slots]slot
	seq   atomic.Uint64 // number of completed publishes

	// consumer side
	out      capture.Frame
	lastRead uint64
	overrun  atomic.Uint64
}

type slot struct {
	mu    sync.RWMutex
	seq   uint64
	frame capture.Frame
}

// NewCopyRing returns an empty ring. Slot buffers are allocated on first use
// and reused while the frame size is unchanged.
func NewCopyRing() *CopyRing {
	return &CopyRing{}
}

// Publish copies f into the next slot and makes it the latest frame.
// It returns the sequence number assigned to the frame, starting at 1.
func (r *CopyRing) Publish(f *capture.Frame) uint64 {
	seq := r.seq.Load()
	s := &r.slots[seq%Slots]

	s.mu.Lock()
	f.CopyTo(&s.frame)
	s.seq = seq + 1
	s.mu.Unlock()

	r.seq.Store(seq + 1)
	return seq + 1
}

// Latest copies the most recently published frame into a consumer-owned
// buffer. ok is false when nothing new was published since the previous call,
// so the same content is never reported as new twice. The returned frame is
// valid until the next call.
func (r *CopyRing) Latest() (f *capture.Frame, seq uint64, ok bool) {
	seq = r.seq.Load()
	if seq == 0 || seq <= r.lastRead {
		return nil, seq, false
	}

	s := &r.slots[(seq-1)%Slots]
	s.mu.RLock()
	s.frame.CopyTo(&r.out)
	seq = s.seq
	s.mu.RUnlock()

	if r.lastRead != 0 && seq-r.lastRead > 1 {
		r.overrun.Add(seq - r.lastRead - 1)
	}
	r.lastRead = seq
	return &r.out, seq, true
}

// Overrun returns how many published frames the consumer never saw because
// the producer completed more than one frame between two reads.
func (r *CopyRing) Overrun() uint64 {
	return r.overrun.Load()
}

// Reset forgets all published frames. It must not race with Publish or
// Latest.
func (r *CopyRing) Reset() {
	r.seq.Store(0)
	r.lastRead = 0
	r.overrun.Store(0)
}
