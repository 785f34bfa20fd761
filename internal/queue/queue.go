// Package queue provides the bounded FIFO hand-off between pipeline stages.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("queue closed")

// DefaultCapacity is used when a capacity of zero or less is requested.
const DefaultCapacity = 8

// Policy decides what Push does when the queue is full.
type Policy int

// Overflow policies.
const (
	// Block waits for space. Nothing is lost.
	Block Policy = iota
	// DropOldest discards the item at the head to make room.
	DropOldest
	// DropNewest discards the item being pushed.
	DropNewest
)

func (p Policy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a config value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return Block, nil
	case "drop_oldest", "drop-oldest", "oldest":
		return DropOldest, nil
	case "drop_newest", "drop-newest", "newest":
		return DropNewest, nil
	default:
		return Block, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Bounded is a FIFO queue with a fixed capacity. Any number of goroutines
// may push; Pop is meant for a single consumer.
type Bounded[T any] struct {
	ch        chan T
	policy    Policy
	closing   chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64

	mu     sync.RWMutex // guards closed against in-flight pushes
	closed bool
}

// New returns an empty queue.
func New[T any](capacity int, policy Policy) *Bounded[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded[T]{
		ch:      make(chan T, capacity),
		policy:  policy,
		closing: make(chan struct{}),
	}
}

// Push appends v. Under the Block policy it waits for space until ctx is done
// or the queue is closed.
func (q *Bounded[T]) Push(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	switch q.policy {
	case DropNewest:
		select {
		case q.ch <- v:
		default:
			q.dropped.Add(1)
		}
		return nil

	case DropOldest:
		for {
			select {
			case q.ch <- v:
				return nil
			default:
			}
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
			}
		}

	default:
		select {
		case q.ch <- v:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closing:
			return ErrClosed
		}
	}
}

// Pop removes the head item, waiting until one is available. It returns false
// only once the queue is closed and every pushed item has been popped.
func (q *Bounded[T]) Pop() (T, bool) {
	v, ok := <-q.ch
	return v, ok
}

// Close stops accepting items. Items already queued stay poppable. Blocked
// pushers return ErrClosed. Close is idempotent.
func (q *Bounded[T]) Close() {
	q.closeOnce.Do(func() { close(q.closing) })

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int {
	return len(q.ch)
}

// Cap returns the capacity.
func (q *Bounded[T]) Cap() int {
	return cap(q.ch)
}

// Dropped returns how many items the overflow policy discarded.
func (q *Bounded[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Policy returns the overflow policy.
func (q *Bounded[T]) Policy() Policy {
	return q.policy
}
