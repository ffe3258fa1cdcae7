package work

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"
)

var (
	// Returned when a task is attempted which was already successfully completed.
	ErrAlreadyComplete = errors.New("This task was already successfully completed once")

	// If this is returned from a task function, the task shall not be re-attempted.
	ErrDoNotReattempt = errors.New("This task should not be re-attempted")

	// This task has been attempted too many times.
	ErrMaxRetriesExceeded = errors.New("The maximum retries for this task has been exceeded")

	// Returned when Attempt is called while another attempt is still running.
	ErrAttemptInProgress = errors.New("This task is already being attempted")

	// The task function panicked. Always accompanied by ErrDoNotReattempt.
	ErrTaskPanicked = errors.New("The task function panicked")

	// Set this function to influence the clock that will be used for
	// scheduling re-attempts.
	Now = func() time.Time {
		return time.Now().UTC()
	}
)

// Stores state for a task which shall be or has been executed. Each task may
// only be executed successfully once.
//
// The accessors are safe to call from any goroutine. The builder methods
// (Retries, MaxTimeout, After, Within) are meant to be called before the task
// is enqueued.
type Task struct {
	Metadata map[string]interface{}

	id    uuid.UUID
	mutex sync.Mutex

	after       func(ctx context.Context, err error)
	attempts    int
	done        bool
	finished    chan struct{}
	running     bool
	err         error
	fn          func(ctx context.Context) error
	nextAttempt time.Time

	maxAttempts int
	maxTimeout  time.Duration
	within      time.Duration
}

// Creates a new task for a given function.
func NewTask(fn func(ctx context.Context) error) *Task {
	return &Task{
		Metadata: make(map[string]interface{}),

		id:          uuid.New(),
		finished:    make(chan struct{}),
		fn:          fn,
		maxAttempts: 10,
		maxTimeout:  30 * time.Minute,
	}
}

// Attempts to execute this task.
//
// If successful, the zero time and nil are returned.
//
// Otherwise, the error returned from the task function is returned to the
// caller. If an error is returned for which errors.Is(err, ErrDoNotReattempt)
// is true, the caller should not call Attempt again. A panic in the task
// function is returned as an error wrapping both ErrTaskPanicked and
// ErrDoNotReattempt.
//
// The next attempt is scheduled relative to Now.
func (t *Task) Attempt(ctx context.Context) (time.Time, error) {
	return t.attempt(ctx, Now)
}

func (t *Task) attempt(ctx context.Context, now func() time.Time) (time.Time, error) {
	t.mutex.Lock()
	if t.done {
		err := t.err
		t.mutex.Unlock()
		if err == nil {
			return time.Time{}, ErrAlreadyComplete
		}
		return time.Time{}, err
	}
	if t.running {
		t.mutex.Unlock()
		return time.Time{}, ErrAttemptInProgress
	}

	t.attempts += 1
	if t.maxAttempts >= 0 && t.attempts > t.maxAttempts {
		t.mutex.Unlock()
		t.finish(ctx, ErrMaxRetriesExceeded)
		return time.Time{}, ErrMaxRetriesExceeded
	}
	t.running = true
	within := t.within
	t.mutex.Unlock()

	taskAttempts.Inc()
	if within != time.Duration(0) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, within)
		defer cancel()
	}

	err := t.call(ctx)

	t.mutex.Lock()
	t.running = false
	if err == nil || errors.Is(err, ErrDoNotReattempt) {
		t.mutex.Unlock()
		t.finish(ctx, err)
		return time.Time{}, err
	}

	t.err = err
	t.nextAttempt = now().Add(t.backoff())
	next := t.nextAttempt
	t.mutex.Unlock()
	return next, err
}

func (t *Task) call(ctx context.Context) (err error) {
	var pc panics.Catcher
	pc.Try(func() {
		err = t.fn(ctx)
	})
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("%w: %v: %w", ErrTaskPanicked, r.Value, ErrDoNotReattempt)
	}
	return err
}

// Must be called with the mutex held.
func (t *Task) backoff() time.Duration {
	exp := t.attempts
	if exp > 20 {
		exp = 20
	}
	next := time.Duration(int64(math.Pow(2, float64(exp)))) * time.Minute
	if t.maxTimeout > 0 && next > t.maxTimeout {
		next = t.maxTimeout
	}
	return next
}

// Marks the task as complete with the given result. Only the first call has
// any effect.
func (t *Task) finish(ctx context.Context, err error) {
	t.mutex.Lock()
	if t.done {
		t.mutex.Unlock()
		return
	}
	t.done = true
	t.err = err
	after := t.after
	t.after = nil
	t.mutex.Unlock()

	switch {
	case err == nil:
		tasksCompleted.Inc()
	case errors.Is(err, ErrQueueClosed):
		tasksCancelled.Inc()
	default:
		tasksFailed.Inc()
	}

	if after != nil {
		after(ctx, err)
	}
	close(t.finished)
}

// Set the maximum number of retries on failure, or -1 to attempt indefinitely.
// By default, a task will be retried a maximum of 10 times.
func (t *Task) Retries(n int) *Task {
	if n < -1 {
		panic(errors.New("Invalid input to Task.Retries"))
	}
	t.mutex.Lock()
	t.maxAttempts = n
	t.mutex.Unlock()
	return t
}

// Sets the maximum timeout between retries, or zero to exponentially increase
// the timeout indefinitely. Defaults to 30 minutes.
func (t *Task) MaxTimeout(d time.Duration) *Task {
	if d < 0 {
		panic(errors.New("Invalid timeout provided to Task.MaxTimeout"))
	}
	t.mutex.Lock()
	t.maxTimeout = d
	t.mutex.Unlock()
	return t
}

// Returns the unique ID assigned to this task on creation.
func (t *Task) ID() uuid.UUID {
	return t.id
}

// Returns the number of times this task has been attempted
func (t *Task) Attempts() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.attempts
}

// Returns the time the next attempt is scheduled for, or the zero value if it
// has not been attempted before.
func (t *Task) NextAttempt() time.Time {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.nextAttempt
}

// Returns true if this task was completed, successfully or not.
func (t *Task) Done() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.done
}

// Returns the final result of a completed task, or the error from the most
// recent attempt if it is still pending.
func (t *Task) Err() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.err
}

// Blocks until the task is completed and returns its final result, or until
// ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.finished:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sets a function which will be executed once the task is completed,
// successfully or not. The final result (nil or an error) is passed to the
// callee.
func (t *Task) After(fn func(ctx context.Context, err error)) *Task {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.after != nil {
		panic(errors.New("This task already has an 'After' function assigned"))
	}
	t.after = fn
	return t
}

// Specifies an upper limit for the duration of each attempt.
func (t *Task) Within(deadline time.Duration) {
	t.mutex.Lock()
	t.within = deadline
	t.mutex.Unlock()
}

// Blocks until every task is completed. Returns the first failure, or ctx's
// error if it is done first.
func WaitAll(ctx context.Context, tasks ...*Task) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return task.Wait(ctx)
		})
	}
	return g.Wait()
}
