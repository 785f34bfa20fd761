package encoder

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/ffmpeg"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics/collectors"
	"github.com/PZwoodcat/Oleppy-Free/internal/process"
)

// finalizeTimeout bounds how long ffmpeg may take to write the trailer.
const finalizeTimeout = 30 * time.Second

// FFmpegBackend encodes with an ffmpeg process that reads rawvideo BGRA on
// stdin and writes the container itself. ffmpeg reads its input at a fixed
// rate, so samples are duplicated or dropped against their timestamps.
type FFmpegBackend struct {
	Binary  string // ffmpeg executable, ffmpeg.DefaultBinary when empty
	Encoder string // libx264 when empty
	Preset  string
	Session string // metrics label
	Logger  *slog.Logger
}

// Open implements Backend.
func (b *FFmpegBackend) Open(st Stream) (Writer, error) {
	logger := b.Logger
	if logger == nil {
		logger = logging.GetLogger("encoder")
	}

	opts := []ffmpeg.OptionType{ffmpeg.OptionProgress}
	switch strings.ToLower(filepath.Ext(st.Path)) {
	case ".mp4", ".m4v", ".mov":
		opts = append(opts, ffmpeg.OptionFastStart)
	}
	cmd, err := ffmpeg.BuildEncodeCommand(&ffmpeg.EncodeParams{
		Binary:      b.Binary,
		Width:       st.Width,
		Height:      st.Height,
		FPS:         st.FPS,
		PixelFormat: "bgra",
		BottomUp:    st.BottomUp,
		Encoder:     b.Encoder,
		Bitrate:     st.Bitrate,
		Preset:      b.Preset,
		Output:      st.Path,
		Options:     opts,
	})
	if err != nil {
		return nil, faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "build encoder command", err)
	}

	progress := collectors.NewFFmpegProgress(b.Session)
	proc, err := process.New("encoder", cmd, logger, process.Options{
		PipeStdin:     true,
		ProcessLogger: logging.GetLogger("ffmpeg"),
		LogParser:     ffmpeg.ParseLogLevel,
		OutputHandler: progress,
	})
	if err != nil {
		return nil, faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "prepare encoder", err)
	}
	if err := proc.Start(); err != nil {
		return nil, faults.Wrap(faults.KindFatalConfig, faults.CodeUnsupported, "start encoder", err).
			With("command", cmd)
	}
	logger.Debug("Encoder process started", "command", cmd)

	return &ffmpegWriter{
		proc:     proc,
		stdin:    proc.Stdin(),
		cfr:      newCFRFeeder(st.FPS),
		progress: progress,
		session:  b.Session,
		logger:   logger,
	}, nil
}

type ffmpegWriter struct {
	proc     *process.Process
	stdin    io.Writer
	cfr      *cfrFeeder
	progress *collectors.FFmpegProgress
	session  string
	logger   *slog.Logger
}

func (w *ffmpegWriter) WriteSample(s Sample) error {
	start := time.Now()
	err := w.cfr.feed(s, func(frame []byte) error {
		if _, err := w.stdin.Write(frame); err != nil {
			return faults.Wrap(faults.KindFatalDevice, faults.CodeDeviceLost, "encoder input closed", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.ObserveEncode(w.session, time.Since(start))
	return nil
}

func (w *ffmpegWriter) Finalize() error {
	defer w.progress.Close()

	if err := w.proc.CloseInput(); err != nil {
		w.logger.Debug("Closing encoder input failed", "error", err)
	}
	code := w.proc.Wait(finalizeTimeout)
	w.logger.Debug("Encoder retimed input",
		"frames", w.cfr.frames(),
		"duplicated", w.cfr.duplicated,
		"dropped", w.cfr.dropped)
	if code == 0 {
		return nil
	}
	if err := w.proc.Err(); err != nil {
		return fmt.Errorf("encoder exited with code %d: %w", code, err)
	}
	return fmt.Errorf("encoder exited with code %d", code)
}
