package work

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithMainKinds(t *testing.T) {
	logger, _ := newTestLogger()
	for _, kind := range []Kind{SingleThread, MultiThread, SharedMultiThread, SharedSingleThread} {
		t.Run(kind.String(), func(t *testing.T) {
			factory := newCountingFactory()
			var handle Executor
			got := WithMain(kind, func(ex Executor) Kind {
				handle = ex
				return ex.Kind()
			}, WithThreads(2), WithThreadFactory(factory), WithLogger(logger))

			assert.Equal(t, kind, got)
			if kind.Threaded() {
				assert.Equal(t, int32(2), factory.joined.Load())
			} else {
				assert.Equal(t, int32(0), factory.spawned.Load())
			}

			// The bootstrap's hold on the executor ends with the call.
			_, err := handle.Submit(func(ctx context.Context) error {
				return nil
			})
			assert.ErrorIs(t, err, ErrQueueClosed)
		})
	}
}

func TestWithMainUnknownKind(t *testing.T) {
	assert.Panics(t, func() {
		WithMain(Kind(42), func(ex Executor) int {
			return 0
		})
	})
}

func TestSingleThreadSpawnsNothing(t *testing.T) {
	factory := newCountingFactory()
	got := WithMain(SingleThread, func(ex Executor) int {
		return 42
	}, WithThreadFactory(factory))

	assert.Equal(t, 42, got)
	assert.Equal(t, int32(0), factory.spawned.Load())
}

func TestSingleThreadPanic(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		WithLocalQueue(func(q *LocalQueue) int {
			panic("boom")
		})
	})
}

func TestLocalQueueAwait(t *testing.T) {
	factory := newCountingFactory()
	ran := WithLocalQueue(func(q *LocalQueue) int {
		var (
			ran   int
			tasks []*Task
		)
		for i := 0; i < 16; i++ {
			task, err := q.Submit(func(ctx context.Context) error {
				ran++
				return nil
			})
			require.NoError(t, err)
			tasks = append(tasks, task)
		}
		require.NoError(t, q.Await(context.TODO(), tasks...))
		return ran
	}, WithThreadFactory(factory))

	assert.Equal(t, 16, ran)
	assert.Equal(t, int32(0), factory.spawned.Load())
}

// Returns a clock which moves forward by step on every reading, so that
// retries scheduled against it are due by the time it is read again.
func steppingClock(step time.Duration) func() time.Time {
	clock := now
	return func() time.Time {
		clock = clock.Add(step)
		return clock
	}
}

func TestLocalQueueAwaitRetries(t *testing.T) {
	lq := NewLocalQueue()
	defer lq.Close()

	lq.Now(steppingClock(time.Hour))

	var attempts int
	task := lq.Task(func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("error")
		}
		return nil
	})

	require.NoError(t, lq.Await(context.TODO(), task))
	assert.Equal(t, 3, attempts)
}

func TestLocalQueueAwaitFailure(t *testing.T) {
	lq := NewLocalQueue()
	defer lq.Close()

	taskerr := errors.New("error")
	ok := lq.Task(func(ctx context.Context) error {
		return nil
	})
	bad := lq.Task(func(ctx context.Context) error {
		return taskerr
	}).Retries(1)
	lq.Now(steppingClock(time.Hour))

	err := lq.Await(context.TODO(), ok, bad)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestLocalQueueAwaitContext(t *testing.T) {
	lq := NewLocalQueue()
	defer lq.Close()

	task := lq.Task(func(ctx context.Context) error {
		return errors.New("error")
	})

	ctx, cancel := context.WithTimeout(context.TODO(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, lq.Await(ctx, task), context.DeadlineExceeded)
	assert.Equal(t, 1, task.Attempts())
}

func TestSharedQueueOutlivesBootstrap(t *testing.T) {
	logger, _ := newTestLogger()
	clone := WithSharedQueue(func(q *SharedQueue) *SharedQueue {
		return q.Clone()
	}, WithThreads(1), WithLogger(logger))

	assert.False(t, clone.Closed())
	task, err := clone.Submit(func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	clone.Dispatch(context.TODO())
	assert.True(t, task.Done())

	clone.Release()
	clone.Release()
	assert.True(t, clone.Closed())
	assert.Panics(t, func() {
		clone.Clone()
	})
}

func TestSharedLocalQueueRefCount(t *testing.T) {
	a := NewSharedLocalQueue()
	b := a.Clone()
	c := b.Clone()
	assert.Equal(t, SharedSingleThread, c.Kind())

	a.Release()
	b.Release()
	assert.False(t, c.Closed())

	task, err := c.Submit(func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, c.Await(context.TODO(), task))

	c.Release()
	assert.True(t, c.Closed())
}

func TestMainFatalOnError(t *testing.T) {
	logger, hook := newTestLogger()

	assert.NotPanics(t, func() {
		Main(SingleThread, func(ex Executor) error {
			return nil
		}, WithLogger(logger))
	})

	assert.PanicsWithValue(t, exitCode(1), func() {
		Main(SingleThread, func(ex Executor) error {
			return errors.New("failed")
		}, WithLogger(logger))
	})
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.FatalLevel, entry.Level)
	assert.Equal(t, "work: main failed", entry.Message)
}

func TestMainAppliesLogLevel(t *testing.T) {
	t.Setenv("DOWORK_LOG_LEVEL", "debug")
	logger, _ := newTestLogger()
	logger.SetLevel(logrus.InfoLevel)

	var level logrus.Level
	Main(SingleThread, func(ex Executor) error {
		level = logger.GetLevel()
		return nil
	}, WithLogger(logger))
	assert.Equal(t, logrus.DebugLevel, level)

	t.Setenv("DOWORK_LOG_LEVEL", "warning")
	Main(SingleThread, func(ex Executor) error {
		level = logger.GetLevel()
		return nil
	}, WithLogger(logger))
	assert.Equal(t, logrus.WarnLevel, level)
}
