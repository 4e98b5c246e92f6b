package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/skypro1111/livecaption/internal/audio"
	"github.com/skypro1111/livecaption/internal/metrics"
	"github.com/skypro1111/livecaption/internal/source"
)

// DefaultQueueSize holds about 32 seconds of 512-sample chunks at 16 kHz
const DefaultQueueSize = 1024

// Pipeline connects a chunk source to the controller through a bounded
// queue. The source goroutine never blocks: chunks that do not fit are
// dropped and counted.
type Pipeline struct {
	source     source.Source
	controller *Controller
	queue      chan audio.Chunk
	logger     *slog.Logger
	metrics    *metrics.Metrics
	closers    []namedCloser

	// Statistics
	received  atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
	warnings  atomic.Uint64
	running   atomic.Bool
	started   atomic.Int64
}

type namedCloser struct {
	name  string
	close func() error
}

// PipelineStats represents pipeline statistics for monitoring
type PipelineStats struct {
	Running         bool            `json:"running"`
	Uptime          string          `json:"uptime"`
	ChunksReceived  uint64          `json:"chunks_received"`
	ChunksDropped   uint64          `json:"chunks_dropped"`
	ChunksProcessed uint64          `json:"chunks_processed"`
	ChunkWarnings   uint64          `json:"chunk_warnings"`
	QueueLength     int             `json:"queue_length"`
	QueueCapacity   int             `json:"queue_capacity"`
	Controller      ControllerStats `json:"controller"`
}

// NewPipeline creates a pipeline with a queue of queueSize chunks
func NewPipeline(src source.Source, controller *Controller, queueSize int, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pipeline{
		source:     src,
		controller: controller,
		queue:      make(chan audio.Chunk, queueSize),
		logger:     logger,
		metrics:    m,
	}
}

// OnDrained registers a close function run after the queue is drained and
// the last utterance flushed. Closers run in registration order.
func (p *Pipeline) OnDrained(name string, fn func() error) {
	p.closers = append(p.closers, namedCloser{name: name, close: fn})
}

// Run starts the source and consumes chunks until the source stops, either
// because ctx was cancelled or because it ran out of audio. Remaining queued
// chunks are processed and an in-progress utterance is finalized before Run
// returns.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)
	p.started.Store(time.Now().UnixNano())

	// Engine calls during the drain must outlive the cancelled run context
	workCtx := context.WithoutCancel(ctx)

	srcErr := make(chan error, 1)
	go func() {
		defer close(p.queue)
		srcErr <- p.source.Run(ctx, p.emit)
	}()

	p.logger.Info("Pipeline started", slog.Int("queue_capacity", cap(p.queue)))

	for chunk := range p.queue {
		p.process(workCtx, chunk)
	}

	err := <-srcErr
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	p.logger.Info("Source stopped, flushing", slog.String("state", p.controller.State().String()))
	p.controller.Flush(workCtx)

	for _, c := range p.closers {
		if cerr := c.close(); cerr != nil {
			p.logger.Warn("Error closing pipeline output",
				slog.String("output", c.name),
				slog.String("error", cerr.Error()))
		}
	}

	stats := p.GetStats()
	p.logger.Info("Pipeline stopped",
		slog.Uint64("chunks_received", stats.ChunksReceived),
		slog.Uint64("chunks_dropped", stats.ChunksDropped),
		slog.Uint64("chunks_processed", stats.ChunksProcessed),
		slog.Uint64("finals", stats.Controller.Finals),
		slog.Uint64("partials", stats.Controller.Partials),
		slog.Uint64("aborts", stats.Controller.Aborts))

	if err != nil {
		return fmt.Errorf("source failed: %w", err)
	}
	return nil
}

// emit is handed to the source. It never blocks.
func (p *Pipeline) emit(chunk audio.Chunk) {
	select {
	case p.queue <- chunk:
		p.received.Add(1)
		p.metrics.RecordChunkQueued(len(p.queue))
	default:
		n := p.dropped.Add(1)
		p.metrics.RecordChunkDropped()
		p.logger.Warn("Chunk queue full, dropping chunk",
			slog.Uint64("sequence", chunk.Sequence),
			slog.Uint64("dropped_total", n))
	}
}

func (p *Pipeline) process(ctx context.Context, chunk audio.Chunk) {
	if chunk.Status != 0 {
		p.warnings.Add(1)
		p.metrics.RecordChunkWarning(chunk.Status.String())
		p.logger.Warn("Audio chunk status",
			slog.Uint64("sequence", chunk.Sequence),
			slog.String("status", chunk.Status.String()))
	}

	if len(chunk.Samples) == 0 {
		return
	}

	step := p.controller.HandleChunk(ctx, chunk)
	p.processed.Add(1)
	p.metrics.SetQueueSize(len(p.queue))

	if step.Action != ActionNone {
		p.logger.Debug("Controller step",
			slog.String("from", step.From.String()),
			slog.String("to", step.To.String()),
			slog.String("action", step.Action.String()),
			slog.Uint64("sequence", chunk.Sequence))
	}
}

// GetStats returns current pipeline statistics. Safe from any goroutine.
func (p *Pipeline) GetStats() PipelineStats {
	uptime := time.Duration(0)
	if started := p.started.Load(); started > 0 && p.running.Load() {
		uptime = time.Since(time.Unix(0, started))
	}

	return PipelineStats{
		Running:         p.running.Load(),
		Uptime:          uptime.Round(time.Second).String(),
		ChunksReceived:  p.received.Load(),
		ChunksDropped:   p.dropped.Load(),
		ChunksProcessed: p.processed.Load(),
		ChunkWarnings:   p.warnings.Load(),
		QueueLength:     len(p.queue),
		QueueCapacity:   cap(p.queue),
		Controller:      p.controller.GetStats(),
	}
}
