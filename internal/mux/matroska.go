package mux

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"

	"github.com/PZwoodcat/Oleppy-Free/internal/h264"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
)

const codecIDAVC = "V_MPEG4/ISO/AVC"

// MatroskaMuxer writes a Matroska file with one AVC track. The track header
// needs the decoder configuration, so nothing is written until the first
// keyframe; earlier packets are dropped.
type MatroskaMuxer struct {
	w      *onceCloser
	stream Stream
	logger *slog.Logger
	tb     timeBase

	video   webm.BlockWriteCloser
	skipped int

	mu    sync.Mutex // fatal is set from the writer goroutine
	fatal error
}

// matroskaCloseTimeout bounds the wait for the block writer to flush.
const matroskaCloseTimeout = 2 * time.Second

// NewMatroskaMuxer returns a muxer writing to w.
func NewMatroskaMuxer(w io.WriteCloser, stream Stream, logger *slog.Logger) *MatroskaMuxer {
	return &MatroskaMuxer{
		w:      newOnceCloser(w),
		stream: stream,
		logger: logger,
		tb:     timeBase{fps: stream.FPS},
	}
}

// WritePacket implements Muxer.
func (m *MatroskaMuxer) WritePacket(p Packet) error {
	if err := m.err(); err != nil {
		return err
	}
	if m.video == nil {
		if !p.Keyframe {
			m.skipped++
			return nil
		}
		if err := m.writeHeader(p.AU); err != nil {
			return err
		}
	}

	avcc, err := h264.MarshalAVCC(h264.StripNonVideo(p.AU))
	if err != nil {
		return fmt.Errorf("marshal access unit %d: %w", p.Index, err)
	}
	idx := m.tb.index(p.PTS)
	ms := (idx*1000 + int64(m.stream.FPS)/2) / int64(m.stream.FPS)
	if _, err := m.video.Write(p.Keyframe, ms, avcc); err != nil {
		return err
	}
	metrics.AddMuxed("matroska", len(avcc))
	return nil
}

func (m *MatroskaMuxer) err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatal
}

func (m *MatroskaMuxer) writeHeader(au [][]byte) error {
	sps, pps := h264.ParameterSets(au)
	private, err := h264.DecoderConfig(sps, pps)
	if err != nil {
		return fmt.Errorf("keyframe without parameter sets: %w", err)
	}

	header := *webm.DefaultEBMLHeader
	header.DocType = "matroska"

	writers, err := webm.NewSimpleBlockWriter(m.w, []webm.TrackEntry{{
		Name:            "Video",
		TrackNumber:     1,
		TrackUID:        1,
		CodecID:         codecIDAVC,
		CodecPrivate:    private,
		TrackType:       1,
		DefaultDuration: uint64(1_000_000_000 / m.stream.FPS),
		Video: &webm.Video{
			PixelWidth:  uint64(m.stream.Width),
			PixelHeight: uint64(m.stream.Height),
		},
	}},
		mkvcore.WithEBMLHeader(&header),
		mkvcore.WithOnFatalHandler(func(err error) {
			m.logger.Error("Matroska writer failed", "error", err)
			m.mu.Lock()
			m.fatal = err
			m.mu.Unlock()
		}),
	)
	if err != nil {
		return fmt.Errorf("create matroska writer: %w", err)
	}
	m.video = writers[0]
	if m.skipped > 0 {
		m.logger.Debug("Dropped packets before first keyframe", "count", m.skipped)
	}
	return nil
}

// Close implements Muxer. The block writer finishes the file and closes it
// from its own goroutine; Close waits for that before returning.
func (m *MatroskaMuxer) Close() error {
	if m.video == nil {
		return m.w.Close()
	}
	err := m.video.Close()
	select {
	case <-m.w.done:
	case <-time.After(matroskaCloseTimeout):
		m.logger.Warn("Matroska writer did not close the output in time")
	}
	return errors.Join(err, m.w.Close(), m.err())
}
