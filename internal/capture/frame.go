// Package capture acquires display frames from a FrameSource.
//
// A source hands out one frame at a time. The frame's data belongs to the
// source until ReleaseFrame is called, so callers copy what they need
// (usually into a ring.CopyRing) before releasing:
//
//	f, err := src.AcquireFrame(capture.DefaultTimeout)
//	if err != nil {
//		// ErrNoNewFrame and ErrResourceBusy are retryable, ErrDeviceLost is not.
//	}
//	ring.Publish(f)
//	src.ReleaseFrame()
package capture

import (
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
)

// Frame is one captured image.
type Frame struct {
	Width  int
	Height int
	Stride int // bytes per row, at least Width*BytesPerPixel
	Format pixfmt.Format
	Data   []byte

	PTS        int64  // presentation time in 100ns ticks
	Seq        uint64 // source sequence number, starting at 1
	CapturedAt time.Time
}

// NewFrame allocates a tightly packed frame.
func NewFrame(width, height int, format pixfmt.Format) *Frame {
	stride := width * format.BytesPerPixel()
	return &Frame{
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
		Data:   make([]byte, pixfmt.FrameSize(format, width, height)),
	}
}

// Row returns row y of a packed frame.
func (f *Frame) Row(y int) []byte {
	off := y * f.Stride
	return f.Data[off : off+f.Width*f.Format.BytesPerPixel()]
}

// CopyTo copies f into dst, reusing dst's buffer when it is large enough.
func (f *Frame) CopyTo(dst *Frame) {
	if cap(dst.Data) < len(f.Data) {
		dst.Data = make([]byte, len(f.Data))
	}
	dst.Data = dst.Data[:len(f.Data)]
	copy(dst.Data, f.Data)
	dst.Width = f.Width
	dst.Height = f.Height
	dst.Stride = f.Stride
	dst.Format = f.Format
	dst.PTS = f.PTS
	dst.Seq = f.Seq
	dst.CapturedAt = f.CapturedAt
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	dst := &Frame{}
	f.CopyTo(dst)
	return dst
}
