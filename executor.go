package work

import (
	"context"
	"fmt"
	"time"
)

// Executor is the handle a bootstrap passes to its driving function. Each
// Kind has its own implementation: *Queue, *SharedQueue, *LocalQueue and
// *SharedLocalQueue.
type Executor interface {
	// Returns the kind of executor this handle belongs to.
	Kind() Kind
	// Enqueues a task for execution.
	Enqueue(t *Task) error
	// Creates and enqueues a task for the given function.
	Submit(fn func(ctx context.Context) error) (*Task, error)
	// Blocks until every task is completed and returns the first failure.
	Await(ctx context.Context, tasks ...*Task) error
}

// The per-kind half of a bootstrap.
type mainExecutor interface {
	Executor
	// Calls f while the executor is being driven.
	bootstrap(o *options, f func())
	// Gives up the bootstrap's hold on the executor.
	release()
}

func (q *Queue) Kind() Kind { return MultiThread }

// Waits for the tasks to be completed by whichever goroutines run this queue.
func (q *Queue) Await(ctx context.Context, tasks ...*Task) error {
	return WaitAll(ctx, tasks...)
}

func (q *Queue) bootstrap(o *options, f func()) {
	runPooled(q, o, f)
}

func (q *Queue) release() {
	q.Close()
}

// A task queue confined to the goroutine which owns it. Nothing runs it in
// the background: tasks make progress while the owner is inside Await or Run.
type LocalQueue struct {
	*Queue
}

// Creates a new local task queue.
func NewLocalQueue() *LocalQueue {
	return &LocalQueue{Queue: NewQueue()}
}

func (lq *LocalQueue) Kind() Kind { return SingleThread }

// Dispatches tasks on the calling goroutine until every given task is
// completed, sleeping until the next scheduled attempt whenever nothing is
// due. Returns the first failure in argument order.
func (lq *LocalQueue) Await(ctx context.Context, tasks ...*Task) error {
	for {
		waiting := firstPending(tasks)
		if waiting == nil {
			break
		}

		lq.Dispatch(ctx)
		if firstPending(tasks) == nil {
			break
		}

		next, due := lq.schedule()
		if due {
			continue
		}

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if !next.IsZero() {
			timer = time.NewTimer(next.Sub(lq.clock()))
			timeout = timer.C
		}

		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-timeout:
		case <-waiting.finished:
		}
		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			return err
		}
	}

	for _, t := range tasks {
		if err := t.Err(); err != nil {
			return err
		}
	}
	return nil
}

func firstPending(tasks []*Task) *Task {
	for _, t := range tasks {
		if !t.Done() {
			return t
		}
	}
	return nil
}

func (lq *LocalQueue) bootstrap(o *options, f func()) {
	f()
}

// Runs f with a new multi-threaded executor and returns its result. One
// worker thread per GOMAXPROCS, or per WithThreads, runs the queue until f
// returns; all of them are
// joined before WithQueue returns or re-raises a panic from f. The queue is
// closed afterwards.
func WithQueue[T any](f func(q *Queue) T, opts ...Option) T {
	return withMain(NewQueue(), f, opts)
}

// Like WithQueue, but f receives a reference-counted handle which may be
// cloned to outlive the call. The queue is closed once every clone has been
// released.
func WithSharedQueue[T any](f func(q *SharedQueue) T, opts ...Option) T {
	return withMain(NewSharedQueue(), f, opts)
}

// Runs f on the calling goroutine with a new single-threaded executor and
// returns its result. No threads are spawned.
func WithLocalQueue[T any](f func(q *LocalQueue) T, opts ...Option) T {
	return withMain(NewLocalQueue(), f, opts)
}

// Like WithLocalQueue, but f receives a reference-counted handle.
func WithSharedLocalQueue[T any](f func(q *SharedLocalQueue) T, opts ...Option) T {
	return withMain(NewSharedLocalQueue(), f, opts)
}

// Runs f with a new executor of the given kind and returns its result.
// Unlike Main, it leaves process-wide settings such as GOMAXPROCS alone.
func WithMain[T any](kind Kind, f func(ex Executor) T, opts ...Option) T {
	switch kind {
	case SingleThread:
		return WithLocalQueue(func(q *LocalQueue) T { return f(q) }, opts...)
	case MultiThread:
		return WithQueue(func(q *Queue) T { return f(q) }, opts...)
	case SharedMultiThread:
		return WithSharedQueue(func(q *SharedQueue) T { return f(q) }, opts...)
	case SharedSingleThread:
		return WithSharedLocalQueue(func(q *SharedLocalQueue) T { return f(q) }, opts...)
	}
	panic(fmt.Errorf("%w: %s", ErrUnknownKind, kind))
}

func withMain[E mainExecutor, T any](ex E, f func(E) T, opts []Option) T {
	o := newOptions(opts)
	defer ex.release()

	bootstraps.WithLabelValues(ex.Kind().String()).Inc()
	o.logger.WithField("kind", ex.Kind()).Debug("work: starting executor")

	var out T
	ex.bootstrap(o, func() {
		out = f(ex)
	})
	return out
}
