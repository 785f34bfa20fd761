package encoder

import (
	"sync"
	"sync/atomic"
)

// NullBackend accepts samples and discards them. It backs dry runs that
// exercise capture and pacing without an encoder installed.
type NullBackend struct {
	mu      sync.Mutex
	streams []Stream

	samples   atomic.Int64
	bytes     atomic.Int64
	finalized atomic.Int64
}

// Open implements Backend.
func (b *NullBackend) Open(st Stream) (Writer, error) {
	b.mu.Lock()
	b.streams = append(b.streams, st)
	b.mu.Unlock()
	return nullWriter{b}, nil
}

// Streams returns every stream opened so far.
func (b *NullBackend) Streams() []Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Stream(nil), b.streams...)
}

// Samples returns the number of samples discarded.
func (b *NullBackend) Samples() int64 { return b.samples.Load() }

// Bytes returns the payload bytes discarded.
func (b *NullBackend) Bytes() int64 { return b.bytes.Load() }

// Finalized returns the number of writers finalized.
func (b *NullBackend) Finalized() int64 { return b.finalized.Load() }

type nullWriter struct {
	b *NullBackend
}

func (w nullWriter) WriteSample(s Sample) error {
	w.b.samples.Add(1)
	w.b.bytes.Add(int64(len(s.Data)))
	return nil
}

func (w nullWriter) Finalize() error {
	w.b.finalized.Add(1)
	return nil
}
