// Package queue buffers inbound firehose frames between the socket reader
// and the decode workers. Enqueue never blocks so a slow handler cannot
// stall the read loop.
package queue

import (
	"context"
	"sync"

	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a frame. It returns ErrQueueFull or ErrQueueClosed
	// instead of waiting.
	Enqueue(ctx context.Context, f model.Frame) error

	// Dequeue returns a channel that yields frames until the queue is
	// closed and drained.
	Dequeue(ctx context.Context) <-chan model.Frame

	// Len returns the number of buffered frames.
	Len() int

	// Cap returns the configured capacity.
	Cap() int

	// Close stops intake. Buffered frames remain readable.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	frames   chan model.Frame
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.frames = make(chan model.Frame, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a frame to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, f model.Frame) error { //nolint:gocritic // hugeParam: Frame is passed by value through the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.frames <- f:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return nil
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return ErrQueueFull
	}
}

// Dequeue returns the queue's channel. Every consumer shares it, so an idle
// consumer always picks up the next frame while another is busy. The channel
// closes once the queue is closed and drained.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Frame {
	return q.frames
}

// Len returns the current number of queued frames.
func (q *InMemoryQueue) Len() int {
	return len(q.frames)
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.frames)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Dequeued records that a consumer took a frame off the queue.
func (q *InMemoryQueue) Dequeued() {
	metrics.RecordQueueDequeue()
	q.updateGauges()
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.frames)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
