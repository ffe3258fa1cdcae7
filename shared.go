package work

import (
	"sync/atomic"
)

// Counts the holders of a shared queue and closes it when the last one lets go.
type refCount struct {
	n     atomic.Int64
	queue *Queue
}

func newRefCount(q *Queue) *refCount {
	rc := &refCount{queue: q}
	rc.n.Store(1)
	return rc
}

func (rc *refCount) acquire() {
	if rc.n.Add(1) <= 1 {
		panic("work: clone of a released shared queue")
	}
}

func (rc *refCount) drop() {
	if rc.n.Add(-1) == 0 {
		rc.queue.Close()
	}
}

// A reference to a multi-threaded queue with shared ownership. The queue
// stays open until every reference has been released.
type SharedQueue struct {
	*Queue
	refs     *refCount
	released atomic.Bool
}

// Creates a new queue and returns the first reference to it.
func NewSharedQueue() *SharedQueue {
	q := NewQueue()
	return &SharedQueue{Queue: q, refs: newRefCount(q)}
}

func (sq *SharedQueue) Kind() Kind { return SharedMultiThread }

// Returns a new reference to the same queue. Panics if the queue has already
// been closed by its last release.
func (sq *SharedQueue) Clone() *SharedQueue {
	sq.refs.acquire()
	return &SharedQueue{Queue: sq.Queue, refs: sq.refs}
}

// Gives up this reference. Releasing the same reference twice is a no-op.
func (sq *SharedQueue) Release() {
	if sq.released.CompareAndSwap(false, true) {
		sq.refs.drop()
	}
}

func (sq *SharedQueue) release() {
	sq.Release()
}

// A reference to a single-threaded queue with shared ownership. Every clone
// must stay on the goroutine that owns the queue.
type SharedLocalQueue struct {
	*LocalQueue
	refs     *refCount
	released atomic.Bool
}

// Creates a new local queue and returns the first reference to it.
func NewSharedLocalQueue() *SharedLocalQueue {
	lq := NewLocalQueue()
	return &SharedLocalQueue{LocalQueue: lq, refs: newRefCount(lq.Queue)}
}

func (sq *SharedLocalQueue) Kind() Kind { return SharedSingleThread }

// Returns a new reference to the same queue.
func (sq *SharedLocalQueue) Clone() *SharedLocalQueue {
	sq.refs.acquire()
	return &SharedLocalQueue{LocalQueue: sq.LocalQueue, refs: sq.refs}
}

// Gives up this reference. Releasing the same reference twice is a no-op.
func (sq *SharedLocalQueue) Release() {
	if sq.released.CompareAndSwap(false, true) {
		sq.refs.drop()
	}
}

func (sq *SharedLocalQueue) release() {
	sq.Release()
}
