// Package dedupe filters commits that a relay replays after a cursor resume.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen commit sequence numbers so each commit is dispatched
// at most once.
type Deduper interface {
	// SeenAndRecord reports whether seq was already seen and records it if
	// not. The check and the insert happen under one lock.
	SeenAndRecord(ctx context.Context, seq int64) bool

	// Unrecord forgets seq so a later delivery is processed again. Used when
	// a commit was recorded but could not be decoded.
	Unrecord(ctx context.Context, seq int64)

	Size() int64
}

// seqDeduper keeps the most recent maxSize sequence numbers in a ring and
// evicts the oldest first. maxSize <= 0 disables eviction.
type seqDeduper struct {
	mu      sync.Mutex
	seen    map[int64]int // seq -> ring slot, -1 when unbounded
	ring    []int64
	next    int
	maxSize int
	size    atomic.Int64
}

const emptySlot = int64(-1)

// NewInMemoryDeduper creates an in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &seqDeduper{
		maxSize: 100_000,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[int64]int)
	if d.maxSize > 0 {
		d.ring = make([]int64, d.maxSize)
		for i := range d.ring {
			d.ring[i] = emptySlot
		}
	}
	return d
}

func (d *seqDeduper) SeenAndRecord(_ context.Context, seq int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[seq]; ok {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[seq] = -1
		d.size.Add(1)
		return false
	}

	if old := d.ring[d.next]; old != emptySlot {
		delete(d.seen, old)
		d.size.Add(-1)
	}
	d.ring[d.next] = seq
	d.seen[seq] = d.next
	d.next = (d.next + 1) % d.maxSize
	d.size.Add(1)
	return false
}

func (d *seqDeduper) Unrecord(_ context.Context, seq int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[seq]
	if !ok {
		return
	}
	delete(d.seen, seq)
	if slot >= 0 {
		d.ring[slot] = emptySlot
	}
	d.size.Add(-1)
}

// Size returns the number of sequence numbers currently remembered.
func (d *seqDeduper) Size() int64 {
	return d.size.Load()
}
