package work

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Returned when a task is submitted to a closed queue, and used as the final
// result of tasks which were still pending when their queue was closed.
var ErrQueueClosed = errors.New("This queue has been closed")

// A task queue. The queue is the executor driven by a bootstrap: worker
// threads call Run, and the driving function submits tasks to it. It is safe
// for concurrent use by any number of goroutines.
type Queue struct {
	mutex  sync.Mutex
	tasks  []*Task
	closed bool
	now    func() time.Time
	wake   Event
}

// Creates a new task queue.
func NewQueue() *Queue {
	return &Queue{
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Sets the function the queue will use to obtain the current time.
func (q *Queue) Now(now func() time.Time) {
	q.mutex.Lock()
	q.now = now
	q.mutex.Unlock()
}

func (q *Queue) clock() time.Time {
	q.mutex.Lock()
	now := q.now
	q.mutex.Unlock()
	return now()
}

// Enqueues a task. Returns ErrQueueClosed if the queue was closed, in which
// case the task is completed with that error.
func (q *Queue) Enqueue(t *Task) error {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		t.finish(context.Background(), ErrQueueClosed)
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, t)
	q.mutex.Unlock()
	tasksQueued.Inc()
	q.wake.Notify(1)
	return nil
}

// Creates and enqueues a new task, returning the new task.
func (q *Queue) Task(fn func(ctx context.Context) error) *Task {
	t := NewTask(fn)
	q.Enqueue(t)
	return t
}

// Creates and enqueues a new task, returning the new task, or an error if the
// queue is closed.
func (q *Queue) Submit(fn func(ctx context.Context) error) (*Task, error) {
	t := NewTask(fn)
	if err := q.Enqueue(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Returns the number of tasks waiting in the queue. Tasks which are being
// attempted right now are not counted.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.tasks)
}

// Attempts any tasks which are due and updates the task schedule.
//
// Due tasks are removed from the queue before they are attempted, so
// concurrent calls never attempt the same task twice. Tasks which are not
// done afterwards are put back with their new schedule.
func (q *Queue) Dispatch(ctx context.Context) {
	now := q.clock()

	// In order to avoid deadlocking if a task queues another task, we claim
	// the due tasks and release the mutex while executing them.
	q.mutex.Lock()
	var due []*Task
	pending := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		if task.NextAttempt().After(now) {
			pending = append(pending, task)
		} else {
			due = append(due, task)
		}
	}
	q.tasks = pending
	q.mutex.Unlock()

	for _, task := range due {
		q.attempt(ctx, task)
	}
}

// Claims and attempts a single due task. Reports false if no task was due.
// If further tasks are due after the claim, another runner is woken for them.
func (q *Queue) dispatchOne(ctx context.Context) bool {
	now := q.clock()

	q.mutex.Lock()
	claimed := -1
	more := false
	for i, t := range q.tasks {
		if t.NextAttempt().After(now) {
			continue
		}
		if claimed >= 0 {
			more = true
			break
		}
		claimed = i
	}
	if claimed < 0 {
		q.mutex.Unlock()
		return false
	}
	task := q.tasks[claimed]
	q.tasks = append(q.tasks[:claimed], q.tasks[claimed+1:]...)
	q.mutex.Unlock()

	if more {
		q.wake.Notify(1)
	}
	q.attempt(ctx, task)
	return true
}

// Retries are scheduled against the queue clock, the same one which decides
// when they are due.
func (q *Queue) attempt(ctx context.Context, task *Task) {
	task.attempt(ctx, q.clock)
	if !task.Done() {
		q.requeue(task)
	}
}

func (q *Queue) requeue(t *Task) {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		t.finish(context.Background(), ErrQueueClosed)
		return
	}
	q.tasks = append(q.tasks, t)
	q.mutex.Unlock()
	// Sleeping runners need to recompute their timers.
	q.wake.Notify(1)
}

// Reports whether any task is due, and otherwise the time of the earliest
// scheduled attempt (zero if there is none).
func (q *Queue) schedule() (next time.Time, due bool) {
	now := q.clock()
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for _, task := range q.tasks {
		n := task.NextAttempt()
		if !n.After(now) {
			return time.Time{}, true
		}
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next, false
}

// Runs the task queue on the calling goroutine until the until function
// returns. Any number of goroutines may run the same queue. ctx is passed to
// every task attempt.
func (q *Queue) Run(ctx context.Context, until func()) {
	stop := make(chan struct{})
	go func() {
		defer close(stop)
		until()
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		// One task per pass, so that due work spreads over every runner.
		if q.dispatchOne(ctx) {
			continue
		}

		// Register before looking at the schedule, so that a task enqueued
		// in between still wakes us.
		listener := q.wake.Listen()
		next, due := q.schedule()
		if due {
			listener.Discard()
			continue
		}

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if !next.IsZero() {
			timer = time.NewTimer(next.Sub(q.clock()))
			timeout = timer.C
		}

		select {
		case <-stop:
		case <-listener.C():
		case <-timeout:
		}
		listener.Discard()
		if timer != nil {
			timer.Stop()
		}
	}
}

// Stops accepting new tasks. Tasks which are still queued are completed with
// ErrQueueClosed. Tasks being attempted right now are allowed to finish, but
// are not re-queued.
func (q *Queue) Close() {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		return
	}
	q.closed = true
	tasks := q.tasks
	q.tasks = nil
	q.mutex.Unlock()

	for _, task := range tasks {
		task.finish(context.Background(), ErrQueueClosed)
	}
	q.wake.NotifyAll()
}

// Returns true if Close was called.
func (q *Queue) Closed() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.closed
}
