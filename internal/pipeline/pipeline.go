package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rgovind/kite-ticks/internal/model"
	"github.com/rgovind/kite-ticks/internal/sink"
)

// Pipeline decouples the feed callback from sink I/O. Producers enqueue
// records into the bounded queue; a single flush goroutine wakes on the
// queue signal or on the flush interval, drains everything in one
// critical section, and writes the batch with the queue lock released.
type Pipeline struct {
	flushInterval time.Duration
	logger        *slog.Logger

	queue *Queue
	out   sink.Sink

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	mu      sync.Mutex
	metrics Metrics
}

// Metrics contains pipeline counters.
type Metrics struct {
	Flushes        int64 // Non-empty batches written
	RecordsFlushed int64
	Errors         int64 // Failed batch writes
}

// New creates a pipeline draining queue into out.
func New(queue *Queue, out sink.Sink, flushInterval time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		flushInterval: flushInterval,
		logger:        logger,
		queue:         queue,
		out:           out,
	}
}

// Enqueue hands a record to the pipeline. Safe to call from the feed
// delivery goroutine at tick rate; never blocks on sink I/O.
func (p *Pipeline) Enqueue(rec model.TickRecord) {
	p.queue.Enqueue(rec)
}

// Start begins the flush loop.
func (p *Pipeline) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.flushLoop()

	p.logger.Info("pipeline started",
		"queue_capacity", p.queue.Cap(),
		"flush_interval", p.flushInterval,
	)
	return nil
}

// Stop shuts down the flush loop and writes any remaining records.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.logger.Info("stopping pipeline")

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("pipeline stop timed out")
	}

	// Final flush of whatever is still queued.
	p.flush()

	p.logger.Info("pipeline stopped")
	return nil
}

// Stats returns pipeline and queue counters.
func (p *Pipeline) Stats() (Metrics, QueueStats) {
	p.mu.Lock()
	m := p.metrics
	p.mu.Unlock()
	return m, p.queue.Stats()
}

// flushLoop wakes on the queue signal or the flush interval, whichever
// comes first.
func (p *Pipeline) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		case <-p.queue.Ready():
		}
		p.flush()
	}
}

// flush drains the queue and writes one batch. A failed write is logged
// and counted; the loop keeps running so later batches are not blocked
// by one bad write.
func (p *Pipeline) flush() {
	batch := p.queue.DrainAll()
	if len(batch) == 0 {
		return
	}

	start := time.Now()

	if err := p.out.WriteBatch(batch); err != nil {
		p.logger.Error("batch write failed", "error", err, "count", len(batch))
		p.mu.Lock()
		p.metrics.Errors++
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.metrics.Flushes++
	p.metrics.RecordsFlushed += int64(len(batch))
	p.mu.Unlock()

	p.logger.Debug("flushed batch",
		"count", len(batch),
		"duration", time.Since(start),
	)
}
