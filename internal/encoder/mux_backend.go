package encoder

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/mux"
)

// MuxBackend encodes with a StreamEncoder and writes packets through the
// in-process muxers, so the output can be any target mux.Open accepts,
// including rtp:// URLs.
type MuxBackend struct {
	Binary  string
	Encoder string
	Preset  string
	Session string
	// RawH264 also writes the elementary stream next to a file output.
	RawH264 bool
	Logger  *slog.Logger
}

// RawPath returns the side output path for a container path.
func RawPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".h264"
}

// Open implements Backend.
func (b *MuxBackend) Open(st Stream) (Writer, error) {
	logger := b.Logger
	if logger == nil {
		logger = logging.GetLogger("encoder")
	}

	ms := mux.Stream{Width: st.Width, Height: st.Height, FPS: st.FPS}
	m, err := mux.Open(st.Path, ms, logging.GetLogger("mux"))
	if err != nil {
		return nil, err
	}
	if b.RawH264 && !strings.Contains(st.Path, "://") && RawPath(st.Path) != st.Path {
		raw, err := mux.Open(RawPath(st.Path), ms, logging.GetLogger("mux"))
		if err != nil {
			m.Close()
			return nil, err
		}
		m = mux.NewTee(m, raw)
	}

	enc, err := NewStreamEncoder(StreamOptions{
		Binary:   b.Binary,
		Encoder:  b.Encoder,
		Preset:   b.Preset,
		Session:  b.Session,
		Width:    st.Width,
		Height:   st.Height,
		FPS:      st.FPS,
		Bitrate:  st.Bitrate,
		BottomUp: st.BottomUp,
		Emit:     m.WritePacket,
	}, logger)
	if err != nil {
		m.Close()
		return nil, err
	}
	return &muxWriter{enc: enc, muxer: m}, nil
}

type muxWriter struct {
	enc   *StreamEncoder
	muxer mux.Muxer
}

func (w *muxWriter) WriteSample(s Sample) error {
	return w.enc.Encode(s.Data, s.PTS)
}

func (w *muxWriter) Finalize() error {
	return errors.Join(w.enc.Flush(), w.muxer.Close())
}
