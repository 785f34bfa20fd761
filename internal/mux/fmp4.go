package mux

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/PZwoodcat/Oleppy-Free/internal/h264"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
)

const fmp4TrackID = 1

// FMP4Muxer writes fragmented MP4 with one fragment per sample. The track
// timescale is the frame rate, so sample times are frame indexes.
//
// A sample's duration is the distance to the next one, so each sample is
// written when its successor arrives and the last one on Close.
type FMP4Muxer struct {
	w      io.WriteCloser
	stream Stream
	logger *slog.Logger
	tb     timeBase

	initDone bool
	seq      uint32
	pending  *fmp4.Sample
	pendIdx  int64
	skipped  int
}

// NewFMP4Muxer returns a muxer writing to w.
func NewFMP4Muxer(w io.WriteCloser, stream Stream, logger *slog.Logger) *FMP4Muxer {
	return &FMP4Muxer{
		w:      w,
		stream: stream,
		logger: logger,
		tb:     timeBase{fps: stream.FPS},
	}
}

// WritePacket implements Muxer.
func (m *FMP4Muxer) WritePacket(p Packet) error {
	if !m.initDone {
		if !p.Keyframe {
			m.skipped++
			return nil
		}
		if err := m.writeInit(p.AU); err != nil {
			return err
		}
	}

	payload, err := h264.MarshalAVCC(h264.StripNonVideo(p.AU))
	if err != nil {
		return fmt.Errorf("marshal access unit %d: %w", p.Index, err)
	}
	idx := m.tb.index(p.PTS)

	if m.pending != nil {
		m.pending.Duration = uint32(idx - m.pendIdx)
		if err := m.flush(); err != nil {
			return err
		}
	}
	m.pending = &fmp4.Sample{
		IsNonSyncSample: !p.Keyframe,
		Payload:         payload,
	}
	m.pendIdx = idx
	return nil
}

func (m *FMP4Muxer) writeInit(au [][]byte) error {
	sps, pps := h264.ParameterSets(au)
	if sps == nil || pps == nil {
		return fmt.Errorf("keyframe without parameter sets: %w", h264.ErrParameterSets)
	}
	initSeg := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{{
			ID:        fmp4TrackID,
			TimeScale: uint32(m.stream.FPS),
			Codec: &mp4.CodecH264{
				SPS: sps,
				PPS: pps,
			},
		}},
	}

	var buf seekablebuffer.Buffer
	if err := initSeg.Marshal(&buf); err != nil {
		return fmt.Errorf("marshal init segment: %w", err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write init segment: %w", err)
	}
	m.initDone = true
	if m.skipped > 0 {
		m.logger.Debug("Dropped packets before first keyframe", "count", m.skipped)
	}
	return nil
}

func (m *FMP4Muxer) flush() error {
	m.seq++
	part := &fmp4.Part{
		SequenceNumber: m.seq,
		Tracks: []*fmp4.PartTrack{{
			ID:       fmp4TrackID,
			BaseTime: uint64(m.pendIdx),
			Samples:  []*fmp4.Sample{m.pending},
		}},
	}
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("marshal fragment %d: %w", m.seq, err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write fragment %d: %w", m.seq, err)
	}
	metrics.AddMuxed("fmp4", len(m.pending.Payload))
	m.pending = nil
	return nil
}

// Close implements Muxer.
func (m *FMP4Muxer) Close() error {
	var err error
	if m.pending != nil {
		m.pending.Duration = 1
		err = m.flush()
	}
	if cerr := m.w.Close(); err == nil {
		err = cerr
	}
	return err
}
