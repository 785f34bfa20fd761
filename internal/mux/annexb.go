package mux

import (
	"fmt"
	"io"

	"github.com/PZwoodcat/Oleppy-Free/internal/h264"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
)

// AnnexBMuxer writes a raw H.264 elementary stream. The format carries no
// timestamps; players assume the declared rate.
type AnnexBMuxer struct {
	w io.WriteCloser
}

// NewAnnexBMuxer returns a muxer writing to w.
func NewAnnexBMuxer(w io.WriteCloser) *AnnexBMuxer {
	return &AnnexBMuxer{w: w}
}

// WritePacket implements Muxer.
func (m *AnnexBMuxer) WritePacket(p Packet) error {
	b, err := h264.MarshalAnnexB(p.AU)
	if err != nil {
		return fmt.Errorf("marshal access unit %d: %w", p.Index, err)
	}
	if _, err := m.w.Write(b); err != nil {
		return err
	}
	metrics.AddMuxed("annexb", len(b))
	return nil
}

// Close implements Muxer.
func (m *AnnexBMuxer) Close() error {
	return m.w.Close()
}
