package encoder

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/ffmpeg"
	"github.com/PZwoodcat/Oleppy-Free/internal/h264"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics/collectors"
	"github.com/PZwoodcat/Oleppy-Free/internal/mux"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
	"github.com/PZwoodcat/Oleppy-Free/internal/process"
)

// StreamOptions configures a StreamEncoder.
type StreamOptions struct {
	Binary  string
	Encoder string
	Preset  string
	Session string

	Width       int
	Height      int
	FPS         int
	Bitrate     int
	PixelFormat pixfmt.Format // layout of the frames passed to Encode, BGRA when empty
	BottomUp    bool

	// Emit receives every packet in output order. It runs on the encoder's
	// reader goroutine.
	Emit func(mux.Packet) error
}

// StreamEncoder runs ffmpeg as a pure H.264 encoder: raw frames go in on
// stdin and an Annex-B stream with access unit delimiters comes back on
// stdout. B-frames are disabled, so every input frame yields one packet in
// input order and packets inherit the input timestamps.
type StreamEncoder struct {
	opts      StreamOptions
	logger    *slog.Logger
	proc      *process.Process
	stdin     io.Writer
	progress  *collectors.FFmpegProgress
	frameSize int

	mu      sync.Mutex
	pending []int64 // timestamps of frames not yet returned as packets
	lastPTS int64
	readErr error

	packets   atomic.Int64
	readDone  chan struct{}
	flushOnce sync.Once
	flushErr  error
}

// NewStreamEncoder starts the encoder process.
func NewStreamEncoder(opts StreamOptions, logger *slog.Logger) (*StreamEncoder, error) {
	if opts.Emit == nil {
		return nil, faults.New(faults.KindUsage, faults.CodeInvalidConfig, "stream encoder needs an emit function")
	}
	if opts.PixelFormat == "" {
		opts.PixelFormat = pixfmt.BGRA
	}
	if opts.Bitrate == 0 {
		opts.Bitrate = DefaultBitrate
	}

	cmd, err := ffmpeg.BuildEncodeCommand(&ffmpeg.EncodeParams{
		Binary:      opts.Binary,
		Width:       opts.Width,
		Height:      opts.Height,
		FPS:         opts.FPS,
		PixelFormat: opts.PixelFormat.FFmpegName(),
		BottomUp:    opts.BottomUp,
		Encoder:     opts.Encoder,
		Bitrate:     opts.Bitrate,
		Preset:      opts.Preset,
		Output:      "-",
		Options: []ffmpeg.OptionType{
			ffmpeg.OptionLowLatency,
			ffmpeg.OptionNoBFrames,
			ffmpeg.OptionAccessUnitDelimiters,
			ffmpeg.OptionProgress,
		},
	})
	if err != nil {
		return nil, faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "build encoder command", err)
	}

	progress := collectors.NewFFmpegProgress(opts.Session)
	proc, err := process.New("stream-encoder", cmd, logger, process.Options{
		PipeStdin:     true,
		PipeStdout:    true,
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
	logger.Debug("Stream encoder started", "command", cmd)

	e := &StreamEncoder{
		opts:      opts,
		logger:    logger,
		proc:      proc,
		stdin:     proc.Stdin(),
		progress:  progress,
		frameSize: pixfmt.FrameSize(opts.PixelFormat, opts.Width, opts.Height),
		readDone:  make(chan struct{}),
	}
	go e.readLoop(proc.Stdout())
	return e, nil
}

// Encode submits one frame at pts, in 100ns ticks.
func (e *StreamEncoder) Encode(data []byte, pts int64) error {
	if len(data) < e.frameSize {
		return faults.New(faults.KindUsage, faults.CodeShortBuffer, "frame buffer too short").
			With("have", len(data)).
			With("want", e.frameSize)
	}
	select {
	case <-e.readDone:
		return faults.Wrap(faults.KindFatalDevice, faults.CodeDeviceLost, "encoder output closed", e.err())
	default:
	}

	start := time.Now()
	e.mu.Lock()
	e.pending = append(e.pending, pts)
	e.mu.Unlock()
	if _, err := e.stdin.Write(data[:e.frameSize]); err != nil {
		return faults.Wrap(faults.KindFatalDevice, faults.CodeDeviceLost, "encoder input closed", err)
	}
	metrics.ObserveEncode(e.opts.Session, time.Since(start))
	return nil
}

// Flush closes the input, waits until every packet has been emitted and the
// process has exited. Later calls return the first result.
func (e *StreamEncoder) Flush() error {
	e.flushOnce.Do(func() {
		defer e.progress.Close()

		if err := e.proc.CloseInput(); err != nil {
			e.logger.Debug("Closing encoder input failed", "error", err)
		}
		select {
		case <-e.readDone:
		case <-time.After(finalizeTimeout):
			e.logger.Warn("Encoder output did not end, stopping process")
			e.proc.Stop()
			<-e.readDone
		}

		var errs []error
		if err := e.err(); err != nil {
			errs = append(errs, err)
		}
		if code := e.proc.Wait(finalizeTimeout); code != 0 {
			errs = append(errs, faults.New(faults.KindFatalDevice, faults.CodeDeviceLost, "encoder exited with error").
				With("exit_code", code))
		}
		e.mu.Lock()
		if n := len(e.pending); n > 0 {
			e.logger.Warn("Frames without output packets", "count", n)
		}
		e.mu.Unlock()
		e.logger.Debug("Encoder flushed", "session", e.opts.Session, "packets", e.Packets())
		e.flushErr = errors.Join(errs...)
	})
	return e.flushErr
}

// Packets returns the number of packets emitted so far.
func (e *StreamEncoder) Packets() int64 {
	return e.packets.Load()
}

func (e *StreamEncoder) err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readErr
}

func (e *StreamEncoder) readLoop(r io.Reader) {
	defer close(e.readDone)

	sp := h264.NewSplitter(r)
	for {
		au, err := sp.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			e.fail(err)
			break
		}
		pkt := mux.Packet{
			AU:       au,
			PTS:      e.nextPTS(),
			Keyframe: h264.IsKeyframe(au),
			Index:    e.packets.Load(),
		}
		if err := e.opts.Emit(pkt); err != nil {
			e.fail(err)
			break
		}
		e.packets.Add(1)
	}
	// Keep the pipe drained so ffmpeg can exit.
	_, _ = io.Copy(io.Discard, r)
}

// nextPTS pairs the next packet with the oldest unanswered input timestamp.
func (e *StreamEncoder) nextPTS() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		e.lastPTS += pacer.FrameDuration(e.opts.FPS)
		return e.lastPTS
	}
	pts := e.pending[0]
	e.pending = e.pending[1:]
	e.lastPTS = pts
	return pts
}

func (e *StreamEncoder) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readErr == nil {
		e.readErr = err
		e.logger.Error("Encoder output failed", "error", err)
	}
}
