package ring

import (
	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
)

// Readback results. Both are retryable on the next tick.
var (
	ErrMapBusy  = faults.New(faults.KindResource, faults.CodeMapBusy, "staging slot still in use by the device")
	ErrNotReady = faults.New(faults.KindTransient, faults.CodeNotReady, "no staged frame to read back yet")
)

// Mapped is a host-readable view of a staging slot. Rows are top-down with
// Pitch bytes between row starts.
type Mapped struct {
	Data   []byte
	Pitch  int
	Width  int
	Height int
	PTS    int64
	Seq    uint64
}

// Stager copies frames into device staging memory and maps them for reading.
type Stager interface {
	// Stage starts the copy of src into slot.
	Stage(slot int, src *capture.Frame) error
	// Map returns the slot's contents without waiting. It returns an error
	// of kind Resource while the copy is still in flight.
	Map(slot int) (Mapped, error)
	Unmap(slot int)
}

// ReadbackRing stages frames round-robin and reads back the previous slot.
type ReadbackRing struct {
	stager   Stager
	cpuIndex uint64
	out      capture.Frame
}

// NewReadbackRing returns a ring backed by stager.
func NewReadbackRing(stager Stager) *ReadbackRing {
	return &ReadbackRing{stager: stager}
}

// Step stages src into slot cpuIndex%Slots and then tries to map the slot
// staged on the previous step. It never blocks: when the previous slot is
// not mappable yet it returns ErrMapBusy and the frame for this tick is
// skipped.
//
// The returned frame is tightly packed BGRA with the staged rows written in
// reverse order, so output row 0 holds the last staged row. It is valid until
// the next Step.
func (r *ReadbackRing) Step(src *capture.Frame) (*capture.Frame, error) {
	cur := int(r.cpuIndex % Slots)
	if err := r.stager.Stage(cur, src); err != nil {
		return nil, err
	}
	r.cpuIndex++
	if r.cpuIndex == 1 {
		return nil, ErrNotReady
	}

	prev := (cur - 1 + Slots) % Slots
	m, err := r.stager.Map(prev)
	if err != nil {
		return nil, err
	}
	defer r.stager.Unmap(prev)

	flipRows(&r.out, m)
	return &r.out, nil
}

// Reset drops staging history. The next Step yields ErrNotReady.
func (r *ReadbackRing) Reset() {
	r.cpuIndex = 0
}

// flipRows fills dst from the last source row upward.
func flipRows(dst *capture.Frame, m Mapped) {
	rowBytes := m.Width * 4
	size := rowBytes * m.Height
	if cap(dst.Data) < size {
		dst.Data = make([]byte, size)
	}
	dst.Data = dst.Data[:size]
	dst.Width = m.Width
	dst.Height = m.Height
	dst.Stride = rowBytes
	dst.Format = pixfmt.BGRA
	dst.PTS = m.PTS
	dst.Seq = m.Seq

	for y := 0; y < m.Height; y++ {
		srcOff := (m.Height - 1 - y) * m.Pitch
		copy(dst.Data[y*rowBytes:(y+1)*rowBytes], m.Data[srcOff:srcOff+rowBytes])
	}
}
