// Package worker runs decode workers that drain the frame queue. Workers do
// not coordinate, so with more than one worker frames may complete out of
// arrival order.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/pkg/logger"
	"github.com/okian/blueskyer/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Processor handles one frame. A returned error is logged and counted; it
// never stops the worker.
type Processor interface {
	Process(ctx context.Context, f model.Frame) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, f model.Frame) error

// Process calls fn.
func (fn ProcessorFunc) Process(ctx context.Context, f model.Frame) error { //nolint:gocritic // hugeParam
	return fn(ctx, f)
}

// Queue defines how workers receive frames.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Frame
}

// Stats counts frame outcomes.
type Stats struct {
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Processed returns the number of frames handled without error.
func (s *Stats) Processed() uint64 { return s.processed.Load() }

// Failed returns the number of frames whose processing failed or panicked.
func (s *Stats) Failed() uint64 { return s.failed.Load() }

// Worker processes frames until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	stats     *Stats

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		stats:     &Stats{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.GetOr(logger.Nop()).Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	frames := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if d, ok := w.queue.(interface{ Dequeued() }); ok {
				d.Dequeued()
			}
			w.processFrame(ctx, f)
		}
	}
}

// Shutdown signals the worker to stop and waits for the current frame.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) processFrame(ctx context.Context, f model.Frame) { //nolint:gocritic // hugeParam
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		if r := recover(); r != nil {
			w.stats.failed.Add(1)
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "frame handler panicked",
				logger.Uint64("frame", f.Index),
				logger.Any("panic", r),
			)
		}
	}()

	if err := w.processor.Process(ctx, f); err != nil {
		w.stats.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "decode_error")
		w.logger.Warn(ctx, "frame skipped",
			logger.Uint64("frame", f.Index),
			logger.Int("bytes", len(f.Data)),
			logger.Error(err),
		)
		return
	}
	w.stats.processed.Add(1)
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	stats   *Stats
	logger  logger.Logger
	started atomic.Bool
}

// NewPool creates a pool of workerCount workers. workerCount < 1 selects
// NumCPU*2.
func NewPool(workerCount int, queue Queue, processor Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		stats:   &Stats{},
		logger:  logger.GetOr(logger.Nop()).Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i)), WithStats(p.stats)}, opts...)
		p.workers[i] = NewInMemoryWorker(queue, processor, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Stats returns the pool's shared counters.
func (p *Pool) Stats() *Stats {
	return p.stats
}

// Shutdown closes the queue, lets workers drain what is buffered and waits
// for them. Workers still busy when ctx ends are told to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			w.stop()
			timedOut++
		}
	}
	if timedOut > 0 {
		p.logger.Warn(ctx, "workers stopped before draining", logger.Int("workers", timedOut))
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
