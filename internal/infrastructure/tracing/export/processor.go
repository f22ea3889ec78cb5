package export

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tinyid/tracekit/internal/infrastructure/monitoring"
	"github.com/tinyid/tracekit/internal/infrastructure/tracing"
	"github.com/tinyid/tracekit/internal/logging"
)

// Exporter transmits batches of finished spans to a backend.
type Exporter interface {
	ExportSpans(ctx context.Context, batch []tracing.SpanData) error
	Shutdown(ctx context.Context) error
}

// ProcessorConfig tunes the batch processor.
type ProcessorConfig struct {
	// QueueSize bounds the pending-span buffer. When full, incoming spans
	// are dropped rather than blocking the request path.
	QueueSize int
	// BatchMaxSize triggers a flush when the accumulating batch reaches it.
	BatchMaxSize int
	// FlushInterval triggers a flush on a timer regardless of batch size.
	FlushInterval time.Duration
	// ExportTimeout bounds one transmission attempt (including retries).
	ExportTimeout time.Duration
}

// DefaultProcessorConfig returns production-ready processor configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		QueueSize:     2048,
		BatchMaxSize:  512,
		FlushInterval: 5 * time.Second,
		ExportTimeout: 10 * time.Second,
	}
}

// BatchProcessor buffers finished spans and ships them in batches on a
// background goroutine, decoupled from request handling. It is the only
// structure shared by concurrent request contexts; the channel is the
// concurrency boundary.
type BatchProcessor struct {
	exporter Exporter
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	cfg      ProcessorConfig

	queue   chan tracing.SpanData
	dropped atomic.Uint64
	dropLog *rate.Limiter

	flushCh  chan chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewBatchProcessor creates and starts a batch processor. Metrics may be nil.
func NewBatchProcessor(exporter Exporter, logger *logging.Logger, metrics *monitoring.Metrics, cfg ProcessorConfig) *BatchProcessor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultProcessorConfig().QueueSize
	}
	if cfg.BatchMaxSize <= 0 {
		cfg.BatchMaxSize = DefaultProcessorConfig().BatchMaxSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultProcessorConfig().FlushInterval
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = DefaultProcessorConfig().ExportTimeout
	}

	p := &BatchProcessor{
		exporter: exporter,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		queue:    make(chan tracing.SpanData, cfg.QueueSize),
		dropLog:  rate.NewLimiter(rate.Every(10*time.Second), 1),
		flushCh:  make(chan chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go p.loop()

	return p
}

// OnEnd enqueues a closed, sampled span. Never blocks: when the queue is
// full the span is dropped and counted. Tracing data loss is a monitoring
// signal, not a request failure.
func (p *BatchProcessor) OnEnd(data tracing.SpanData) {
	select {
	case p.queue <- data:
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.RecordSpanDrop("queue_full")
		}
		if p.dropLog.Allow() {
			p.logger.Warn("span queue full, dropping span",
				logging.TraceID(data.TraceID.String()),
				logging.SpanID(data.SpanID.String()),
				zap.Uint64("dropped_total", p.dropped.Load()),
			)
		}
	}
}

// Dropped returns the number of spans dropped at the queue.
func (p *BatchProcessor) Dropped() uint64 {
	return p.dropped.Load()
}

// ForceFlush drains the queue and exports everything pending. Blocks until
// the flush completes or ctx expires.
func (p *BatchProcessor) ForceFlush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case p.flushCh <- ack:
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown flushes pending spans, stops the background loop, and shuts the
// exporter down. Safe to call more than once.
func (p *BatchProcessor) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})

	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return p.exporter.Shutdown(ctx)
}

// loop is the export goroutine: accumulate, flush on size, timer, explicit
// flush, or shutdown.
func (p *BatchProcessor) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]tracing.SpanData, 0, p.cfg.BatchMaxSize)

	for {
		if p.metrics != nil {
			p.metrics.SetQueueDepth(len(p.queue))
		}

		select {
		case data := <-p.queue:
			batch = append(batch, data)
			if len(batch) >= p.cfg.BatchMaxSize {
				batch = p.export(batch)
			}

		case <-ticker.C:
			batch = p.export(batch)

		case ack := <-p.flushCh:
			batch = p.export(append(batch, p.drain()...))
			close(ack)

		case <-p.stopCh:
			p.export(append(batch, p.drain()...))
			return
		}
	}
}

// drain empties the queue without blocking.
func (p *BatchProcessor) drain() []tracing.SpanData {
	var pending []tracing.SpanData
	for {
		select {
		case data := <-p.queue:
			pending = append(pending, data)
		default:
			return pending
		}
	}
}

// export transmits the batch. Transmission failures (after the exporter's
// bounded retries) drop the batch with a warning; they never propagate.
// Returns the reusable empty batch slice.
func (p *BatchProcessor) export(batch []tracing.SpanData) []tracing.SpanData {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ExportTimeout)
	defer cancel()

	start := time.Now()
	err := p.exporter.ExportSpans(ctx, batch)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordExportBatch(len(batch), elapsed, err == nil)
	}

	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordSpanDrops("export_failed", len(batch))
		}
		p.logger.Warn("span export failed, dropping batch",
			zap.Int("spans", len(batch)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}

	return batch[:0]
}
