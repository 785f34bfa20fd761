// Package mux writes encoded H.264 access units into containers and network
// streams.
//
// Every muxer runs on the stream time base 1/fps: packet timestamps in 100ns
// ticks are mapped to the nearest frame index, and indexes are forced to be
// strictly increasing.
package mux

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
)

// Packet is one encoded access unit.
type Packet struct {
	AU       [][]byte // NAL units without start codes
	PTS      int64    // presentation time in 100ns ticks
	Keyframe bool
	Index    int64 // position in encoder output
}

// Size returns the payload size in bytes.
func (p Packet) Size() int {
	n := 0
	for _, nalu := range p.AU {
		n += len(nalu)
	}
	return n
}

// Stream declares the single video stream of a container.
type Stream struct {
	Width  int
	Height int
	FPS    int
}

// Muxer consumes packets in presentation order.
type Muxer interface {
	WritePacket(p Packet) error
	// Close writes any trailer and releases the output.
	Close() error
}

// timeBase maps tick timestamps onto strictly increasing frame indexes.
type timeBase struct {
	fps     int
	last    int64
	started bool
}

func (t *timeBase) index(pts int64) int64 {
	idx := pacer.FrameIndex(pts, t.fps)
	if t.started && idx <= t.last {
		idx = t.last + 1
	}
	t.last = idx
	t.started = true
	return idx
}

// onceCloser lets a muxer close its file after a library may already have.
// done is closed once the underlying writer is closed.
type onceCloser struct {
	io.WriteCloser
	once sync.Once
	err  error
	done chan struct{}
}

func newOnceCloser(w io.WriteCloser) *onceCloser {
	return &onceCloser{WriteCloser: w, done: make(chan struct{})}
}

func (c *onceCloser) Close() error {
	c.once.Do(func() {
		c.err = c.WriteCloser.Close()
		close(c.done)
	})
	return c.err
}

// Open creates the muxer for target. Targets starting with rtp:// stream over
// UDP, anything else is a file whose extension selects the container.
func Open(target string, stream Stream, logger *slog.Logger) (Muxer, error) {
	if stream.FPS <= 0 || stream.Width <= 0 || stream.Height <= 0 {
		return nil, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "invalid stream").
			With("stream", fmt.Sprintf("%dx%d@%d", stream.Width, stream.Height, stream.FPS))
	}
	if strings.HasPrefix(target, "rtp://") {
		return DialRTP(target, stream, logger)
	}

	var create func(io.WriteCloser) Muxer
	switch strings.ToLower(filepath.Ext(target)) {
	case ".h264", ".264":
		create = func(w io.WriteCloser) Muxer { return NewAnnexBMuxer(w) }
	case ".mkv", ".webm":
		create = func(w io.WriteCloser) Muxer { return NewMatroskaMuxer(w, stream, logger) }
	case ".mp4", ".m4v":
		create = func(w io.WriteCloser) Muxer { return NewFMP4Muxer(w, stream, logger) }
	default:
		return nil, faults.New(faults.KindFatalConfig, faults.CodeUnsupported, "unsupported container").
			With("target", target)
	}

	f, err := os.Create(target)
	if err != nil {
		return nil, faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "create output", err).
			With("path", target)
	}
	logger.Debug("Muxer opened", "target", target)
	return create(f), nil
}
