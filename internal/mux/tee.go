package mux

import "errors"

// Tee writes every packet to several muxers.
type Tee struct {
	muxers []Muxer
}

// NewTee returns a muxer fanning out to muxers. nil entries are skipped.
func NewTee(muxers ...Muxer) *Tee {
	t := &Tee{}
	for _, m := range muxers {
		if m != nil {
			t.muxers = append(t.muxers, m)
		}
	}
	return t
}

// WritePacket implements Muxer. Every muxer sees the packet even when an
// earlier one fails.
func (t *Tee) WritePacket(p Packet) error {
	var errs []error
	for _, m := range t.muxers {
		if err := m.WritePacket(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Muxer.
func (t *Tee) Close() error {
	var errs []error
	for _, m := range t.muxers {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
