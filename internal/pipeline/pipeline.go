// Package pipeline runs the asynchronous encode path: captured frames go
// through a bounded encode queue to an encoder worker, and the packets it
// produces go through a bounded mux queue to a muxer worker.
//
// Shutdown is ordered so nothing in flight is lost: the encode queue is
// closed and its worker drains it and flushes the encoder, then the mux queue
// is closed and its worker drains it, and only then is the muxer closed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/capture"
	"github.com/PZwoodcat/Oleppy-Free/internal/events"
	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
	"github.com/PZwoodcat/Oleppy-Free/internal/metrics"
	"github.com/PZwoodcat/Oleppy-Free/internal/mux"
	"github.com/PZwoodcat/Oleppy-Free/internal/pacer"
	"github.com/PZwoodcat/Oleppy-Free/internal/pixfmt"
	"github.com/PZwoodcat/Oleppy-Free/internal/queue"
)

// Encoder consumes raw frames in the pipeline's output pixel format. It
// returns packets through the emit function it was created with.
type Encoder interface {
	Encode(data []byte, pts int64) error
	// Flush emits every pending packet. No Encode follows a Flush.
	Flush() error
}

// EncoderFactory creates the encoder with the function that accepts its
// packets.
type EncoderFactory func(emit func(mux.Packet) error) (Encoder, error)

// Options configures a Pipeline.
type Options struct {
	Session string
	Width   int
	Height  int
	FPS     int

	// OutputFormat is the layout handed to the encoder. Frames arrive as
	// BGRA. Defaults to BGRA.
	OutputFormat pixfmt.Format
	Registry     *pixfmt.Registry // pixfmt.Default() when nil

	EncodeQueue int
	MuxQueue    int
	Policy      queue.Policy // encode queue overflow; packets always block

	Bus *events.Bus
}

// Pipeline owns both queues, both workers and the muxer.
type Pipeline struct {
	opts    Options
	logger  *slog.Logger
	encoder Encoder
	muxer   mux.Muxer
	convert pixfmt.ConvertFunc
	counter *pacer.FrameCounter

	frames  *queue.Bounded[*capture.Frame]
	packets *queue.Bounded[mux.Packet]

	encodeDone chan struct{}
	muxDone    chan struct{}
	encodeErr  error
	muxErr     error

	reportedDrops atomic.Uint64
	submitted     atomic.Int64
	encoded       atomic.Int64
	muxed         atomic.Int64

	stopOnce sync.Once
	stopErr  error
}

// New builds the pipeline and starts both workers. muxer is closed by Stop,
// or right away if New fails.
func New(opts Options, newEncoder EncoderFactory, muxer mux.Muxer, logger *slog.Logger) (*Pipeline, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		muxer.Close()
		return nil, faults.New(faults.KindFatalConfig, faults.CodeInvalidConfig, "invalid pipeline geometry").
			With("size", fmt.Sprintf("%dx%d@%d", opts.Width, opts.Height, opts.FPS))
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = pixfmt.BGRA
	}
	if opts.Registry == nil {
		opts.Registry = pixfmt.Default()
	}
	convert, err := opts.Registry.Lookup(pixfmt.BGRA, opts.OutputFormat)
	if err != nil {
		muxer.Close()
		return nil, err
	}

	p := &Pipeline{
		opts:       opts,
		logger:     logger,
		muxer:      muxer,
		convert:    convert,
		counter:    pacer.NewFrameCounter(opts.FPS),
		frames:     queue.New[*capture.Frame](opts.EncodeQueue, opts.Policy),
		packets:    queue.New[mux.Packet](opts.MuxQueue, queue.Block),
		encodeDone: make(chan struct{}),
		muxDone:    make(chan struct{}),
	}
	enc, err := newEncoder(p.emit)
	if err != nil {
		muxer.Close()
		return nil, err
	}
	p.encoder = enc

	go p.muxLoop()
	go p.encodeLoop()
	logger.Debug("Pipeline started",
		"encode_queue", p.frames.Cap(),
		"mux_queue", p.packets.Cap(),
		"policy", p.frames.Policy().String(),
		"format", string(opts.OutputFormat))
	return p, nil
}

// Submit queues a frame for encoding. The pipeline keeps f, so callers pass
// a copy of anything they will reuse. Under a drop policy a full queue loses
// a frame instead of blocking.
func (p *Pipeline) Submit(ctx context.Context, f *capture.Frame) error {
	if f.Format != pixfmt.BGRA || f.Width != p.opts.Width || f.Height != p.opts.Height {
		return faults.New(faults.KindFatalConfig, faults.CodeUnsupported, "frame does not match pipeline").
			With("frame", fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.Format))
	}
	if err := p.frames.Push(ctx, f); err != nil {
		return err
	}
	p.submitted.Add(1)
	metrics.SetQueueDepth("encode", p.frames.Len())
	p.reportDrops()
	return nil
}

func (p *Pipeline) reportDrops() {
	total := p.frames.Dropped()
	prev := p.reportedDrops.Swap(total)
	if total <= prev {
		return
	}
	metrics.AddQueueDropped("encode", total-prev)
	p.opts.Bus.Publish(events.FrameDroppedEvent{
		Session:   p.opts.Session,
		Queue:     "encode",
		Total:     total,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// emit runs on the encoder's goroutine. The mux queue always blocks, so an
// encoder never outruns the muxer by more than the queue capacity.
func (p *Pipeline) emit(pkt mux.Packet) error {
	if err := p.packets.Push(context.Background(), pkt); err != nil {
		return err
	}
	metrics.SetQueueDepth("mux", p.packets.Len())
	return nil
}

func (p *Pipeline) encodeLoop() {
	defer close(p.encodeDone)

	buf := make([]byte, pixfmt.FrameSize(p.opts.OutputFormat, p.opts.Width, p.opts.Height))
	for {
		f, ok := p.frames.Pop()
		if !ok {
			break
		}
		metrics.SetQueueDepth("encode", p.frames.Len())
		if p.encodeErr != nil {
			continue
		}
		if err := p.convert(buf, f.Data, f.Width, f.Height, f.Stride); err != nil {
			p.encodeErr = err
			continue
		}
		if err := p.encoder.Encode(buf, p.counter.Stamp()); err != nil {
			p.logger.Error("Encode failed, discarding remaining frames", "error", err)
			p.encodeErr = err
			continue
		}
		p.encoded.Add(1)
	}

	if err := p.encoder.Flush(); err != nil {
		p.encodeErr = errors.Join(p.encodeErr, err)
	}
}

func (p *Pipeline) muxLoop() {
	defer close(p.muxDone)

	for {
		pkt, ok := p.packets.Pop()
		if !ok {
			return
		}
		metrics.SetQueueDepth("mux", p.packets.Len())
		if p.muxErr != nil {
			continue
		}
		if err := p.muxer.WritePacket(pkt); err != nil {
			p.logger.Error("Mux failed, discarding remaining packets", "error", err)
			p.muxErr = err
			continue
		}
		p.muxed.Add(1)
	}
}

// Stop drains both queues in order and closes the muxer. It is safe to call
// more than once; later calls return the first result.
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() {
		p.frames.Close()
		<-p.encodeDone
		p.packets.Close()
		<-p.muxDone
		closeErr := p.muxer.Close()
		p.reportDrops()
		p.logger.Debug("Pipeline stopped",
			"submitted", p.submitted.Load(),
			"encoded", p.encoded.Load(),
			"muxed", p.muxed.Load(),
			"dropped", p.frames.Dropped())
		p.stopErr = errors.Join(p.encodeErr, p.muxErr, closeErr)
	})
	return p.stopErr
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Submitted int64  `json:"submitted"`
	Encoded   int64  `json:"encoded"`
	Muxed     int64  `json:"muxed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
	Policy    string `json:"policy"`
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Encoded:   p.encoded.Load(),
		Muxed:     p.muxed.Load(),
		Dropped:   p.frames.Dropped(),
		Queued:    p.frames.Len() + p.packets.Len(),
		Policy:    p.frames.Policy().String(),
	}
}
