package ring

import (
	"fmt"

	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
)

// PitchAlign is the row alignment of HostStager buffers.
const PitchAlign = 256

// HostStager emulates device staging memory in host RAM. Rows are stored with
// a pitch rounded up to PitchAlign. A staged slot stays busy until MapLatency
// further Stage calls have happened.
type HostStager struct {
	MapLatency int

	tick  int
	slots [Slots]stagedSlot
}

type stagedSlot struct {
	data     []byte
	pitch    int
	width    int
	height   int
	pts      int64
	seq      uint64
	stagedAt int
	staged   bool
	mapped   bool
}

// NewHostStager returns a stager whose slots become mappable latency ticks
// after staging. The ReadbackRing maps one tick after staging, so latencies
// above 1 make every map fail.
func NewHostStager(latency int) *HostStager {
	return &HostStager{MapLatency: latency}
}

// Stage implements Stager.
func (h *HostStager) Stage(slot int, src *capture.Frame) error {
	if src.Format.BytesPerPixel() != 4 {
		return faults.New(faults.KindFatalConfig, faults.CodeUnsupported, "staging needs a packed 32-bit frame").
			With("format", string(src.Format))
	}
	s := &h.slots[slot]
	if s.mapped {
		return faults.New(faults.KindUsage, faults.CodeBadState, fmt.Sprintf("slot %d is still mapped", slot))
	}

	rowBytes := src.Width * 4
	pitch := (rowBytes + PitchAlign - 1) / PitchAlign * PitchAlign
	size := pitch * src.Height
	if cap(s.data) < size {
		s.data = make([]byte, size)
	}
	s.data = s.data[:size]
	for y := 0; y < src.Height; y++ {
		copy(s.data[y*pitch:y*pitch+rowBytes], src.Data[y*src.Stride:y*src.Stride+rowBytes])
	}

	h.tick++
	s.pitch = pitch
	s.width = src.Width
	s.height = src.Height
	s.pts = src.PTS
	s.seq = src.Seq
	s.stagedAt = h.tick
	s.staged = true
	return nil
}

// Map implements Stager.
func (h *HostStager) Map(slot int) (Mapped, error) {
	s := &h.slots[slot]
	if !s.staged {
		return Mapped{}, ErrNotReady
	}
	if h.tick-s.stagedAt < h.MapLatency {
		return Mapped{}, ErrMapBusy.With("slot", slot)
	}
	s.mapped = true
	return Mapped{
		Data:   s.data,
		Pitch:  s.pitch,
		Width:  s.width,
		Height: s.height,
		PTS:    s.pts,
		Seq:    s.seq,
	}, nil
}

// Unmap implements Stager.
func (h *HostStager) Unmap(slot int) {
	h.slots[slot].mapped = false
}

var _ Stager = (*HostStager)(nil)
