// Package encoder turns raw BGRA frames into H.264 output.
//
// A Sink owns one output for its whole life:
//
//	sink := encoder.NewSink(backend, logger)
//	err := sink.Begin(1920, 1080, 30, "capture.mp4", encoder.DefaultBitrate)
//	for ... {
//		err = sink.WriteFrame(frame, ts)
//	}
//	err = sink.End()
//
// The Backend decides where the samples go: an ffmpeg process writing the
// container itself, the in-process muxers fed by a streaming encoder, or
// nowhere for dry runs.
package encoder

import (
	"fmt"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
)

// DefaultBitrate is the target H.264 bitrate in bits per second.
const DefaultBitrate = 8_000_000

// Stream declares the single video stream of an output. Input and output
// share size and rate; input is packed BGRA.
type Stream struct {
	Width   int
	Height  int
	FPS     int
	Bitrate int
	Path    string
	// ConstantRate gives every sample the fixed duration of one frame.
	ConstantRate bool
	// BottomUp marks input whose first row is the bottom of the image, as
	// produced by the readback ring.
	BottomUp bool
}

func (s Stream) String() string {
	return fmt.Sprintf("%dx%d@%d %s", s.Width, s.Height, s.FPS, s.Path)
}

// FrameSize returns the byte size of one input frame.
func (s Stream) FrameSize() int {
	return s.Width * s.Height * 4
}

func (s Stream) validate() error {
	invalid := func(msg string) error {
		return faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, msg).
			With("stream", s.String())
	}
	switch {
	case s.Width <= 0 || s.Height <= 0:
		return invalid("frame size must be positive")
	case s.FPS <= 0:
		return invalid("frame rate must be positive")
	case s.Bitrate < 0:
		return invalid("bitrate must not be negative")
	case s.Path == "":
		return invalid("missing output path")
	}
	return nil
}

// Sample is one raw frame handed to a backend.
type Sample struct {
	Data     []byte // tightly packed BGRA, owned by the writer
	PTS      int64  // presentation time in 100ns ticks
	Duration int64  // 0 when the container derives it from the next sample
}

// Writer receives the samples of one stream.
type Writer interface {
	WriteSample(s Sample) error
	// Finalize drains pending output, writes the trailer and releases the
	// output.
	Finalize() error
}

// Backend opens writers.
type Backend interface {
	Open(stream Stream) (Writer, error)
}
