package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/blueskyer/internal/adapters/mq/queue"
	worker "github.com/okian/blueskyer/internal/adapters/mq/worker"
	model "github.com/okian/blueskyer/internal/domain/model"
)

type mockQueue struct {
	frames chan model.Frame
	once   sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{frames: make(chan model.Frame, 16)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Frame { return mq.frames }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.frames) })
	return nil
}

func (mq *mockQueue) add(i int) {
	mq.frames <- model.Frame{Index: uint64(i), Data: []byte{byte(i)}}
}

// recordingProcessor records completion order and fails or panics on
// selected frames.
type recordingProcessor struct {
	mu       sync.Mutex
	done     []uint64
	failOn   map[uint64]bool
	panicOn  map[uint64]bool
	delayOn  map[uint64]time.Duration
	finished chan uint64
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{
		failOn:   map[uint64]bool{},
		panicOn:  map[uint64]bool{},
		delayOn:  map[uint64]time.Duration{},
		finished: make(chan uint64, 64),
	}
}

func (p *recordingProcessor) Process(ctx context.Context, f model.Frame) error {
	defer func() { p.finished <- f.Index }()
	if d := p.delayOn[f.Index]; d > 0 {
		time.Sleep(d)
	}
	if p.panicOn[f.Index] {
		panic("boom")
	}
	if p.failOn[f.Index] {
		return errors.New("bad frame")
	}
	p.mu.Lock()
	p.done = append(p.done, f.Index)
	p.mu.Unlock()
	return nil
}

func (p *recordingProcessor) order() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.done...)
}

func (p *recordingProcessor) wait(n int) bool {
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-p.finished:
		case <-timeout:
			return false
		}
	}
	return true
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		q := newMockQueue()
		proc := newRecordingProcessor()
		stats := &worker.Stats{}
		w := worker.NewInMemoryWorker(q, proc, worker.WithName("w-test"), worker.WithStats(stats))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When frames are queued", func() {
			for i := 0; i < 3; i++ {
				q.add(i)
			}

			convey.Convey("Then they are processed in order", func() {
				convey.So(proc.wait(3), convey.ShouldBeTrue)
				convey.So(proc.order(), convey.ShouldResemble, []uint64{0, 1, 2})
				convey.So(stats.Processed(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When a frame fails and another panics", func() {
			proc.failOn[1] = true
			proc.panicOn[2] = true
			for i := 0; i < 4; i++ {
				q.add(i)
			}

			convey.Convey("Then the worker keeps going", func() {
				convey.So(proc.wait(4), convey.ShouldBeTrue)
				convey.So(proc.order(), convey.ShouldResemble, []uint64{0, 3})
				convey.So(stats.Failed(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.Convey("Then Run returns", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue closes", func() {
			_ = q.Close()

			convey.Convey("Then Run returns", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers over the in-memory queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		proc := newRecordingProcessor()
		pool := worker.NewPool(4, q, proc)
		ctx := context.Background()
		pool.Start(ctx)
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When frames are queued and the pool shuts down", func() {
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(ctx, model.Frame{Index: uint64(i)}), convey.ShouldBeNil)
			}
			sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()

			convey.Convey("Then every buffered frame is drained first", func() {
				convey.So(pool.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(proc.order(), convey.ShouldHaveLength, 50)
				convey.So(pool.Stats().Processed(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with a zero worker count", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newRecordingProcessor())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
	})
}

func TestPoolOrdering(t *testing.T) {
	convey.Convey("Given a slow first frame", t, func() {
		ctx := context.Background()

		convey.Convey("When two workers share the queue", func() {
			q := newMockQueue()
			proc := newRecordingProcessor()
			proc.delayOn[0] = 200 * time.Millisecond
			pool := worker.NewPool(2, q, proc)
			pool.Start(ctx)
			q.add(0)
			time.Sleep(20 * time.Millisecond)
			q.add(1)

			convey.Convey("Then the later frame can finish first", func() {
				convey.So(proc.wait(2), convey.ShouldBeTrue)
				convey.So(proc.order(), convey.ShouldResemble, []uint64{1, 0})
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a single worker owns the queue", func() {
			q := newMockQueue()
			proc := newRecordingProcessor()
			proc.delayOn[0] = 50 * time.Millisecond
			pool := worker.NewPool(1, q, proc)
			pool.Start(ctx)
			q.add(0)
			q.add(1)

			convey.Convey("Then arrival order is kept", func() {
				convey.So(proc.wait(2), convey.ShouldBeTrue)
				convey.So(proc.order(), convey.ShouldResemble, []uint64{0, 1})
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}
