package work

import (
	"context"
	"fmt"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/automaxprocs/maxprocs"
)

// A joinable worker thread.
type Thread interface {
	// Blocks until the thread's function has returned.
	Join()
}

// Starts worker threads for a pool. A failure to spawn is fatal to the
// bootstrap which asked for the thread.
type ThreadFactory interface {
	Spawn(name string, fn func()) (Thread, error)
}

// The default ThreadFactory. Each worker gets a goroutine locked to its own
// OS thread, labelled with the worker name for profiles.
type goroutineFactory struct{}

type goroutineThread struct {
	done chan struct{}
}

func (goroutineFactory) Spawn(name string, fn func()) (Thread, error) {
	t := &goroutineThread{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		// Never unlocked: the OS thread exits along with the worker.
		runtime.LockOSThread()
		pprof.Do(context.Background(), pprof.Labels("thread", name), func(context.Context) {
			fn()
		})
	}()
	return t, nil
}

func (t *goroutineThread) Join() {
	<-t.done
}

var (
	maxprocsOnce sync.Once
	maxprocsErr  error
)

// Sizes GOMAXPROCS to the container CPU quota. This is process-wide and is
// never undone, so only Main calls it; the library entry points just read
// GOMAXPROCS.
func adjustMaxprocs(logger logrus.FieldLogger) error {
	maxprocsOnce.Do(func() {
		_, maxprocsErr = maxprocs.Set(maxprocs.Logger(logger.Debugf))
	})
	return maxprocsErr
}

// Returns the number of CPUs this process may use, as given by GOMAXPROCS.
func detectParallelism() (int, error) {
	return runtime.GOMAXPROCS(0), nil
}

func (o *options) workerCount() int {
	if o.threads > 0 {
		return o.threads
	}
	n, err := o.parallelism()
	if err != nil {
		o.logger.WithError(err).Warn("work: unable to detect parallelism, using one worker thread")
		return 1
	}
	if n < 1 {
		return 1
	}
	return n
}

type workerThread struct {
	index  int
	thread Thread
}

type threadPool struct {
	workers []workerThread
	signal  *StopSignal
	cancel  context.CancelFunc
	panics  panics.Catcher
	log     *logrus.Entry
}

// Runs f on the calling goroutine while one worker thread per CPU drives q.
// The workers are stopped and joined before runPooled returns, whether f
// returns or panics. A panic from f is re-raised only after the join.
func runPooled(q *Queue, o *options, f func()) {
	n := o.workerCount()
	log := o.logger.WithField("threads", n)
	ctx, cancel := context.WithCancel(o.ctx)
	p := &threadPool{
		signal: NewStopSignal(),
		cancel: cancel,
		log:    log,
	}

	if err := p.spawn(ctx, q, o.factory, n); err != nil {
		p.shutdown()
		log.WithError(err).Fatal("work: failed to spawn worker thread")
		// Only reached if the logger's ExitFunc returns.
		panic(err)
	}
	log.Debug("work: worker threads started")

	var driver panics.Catcher
	func() {
		defer p.shutdown()
		driver.Try(f)
	}()

	if r := driver.Recovered(); r != nil {
		log.WithField("stack", string(r.Stack)).Debug("work: driving function panicked")
		panic(r.Value)
	}
	p.panics.Repanic()
}

func (p *threadPool) spawn(ctx context.Context, q *Queue, factory ThreadFactory, n int) error {
	p.workers = make([]workerThread, 0, n)
	for i := 0; i < n; i++ {
		i := i
		name := fmt.Sprintf("dowork-worker-%d", i)
		thread, err := factory.Spawn(name, func() {
			p.work(ctx, q, i)
		})
		if err != nil {
			return fmt.Errorf("spawn %s: %w", name, err)
		}
		workerSpawns.Inc()
		p.workers = append(p.workers, workerThread{index: i, thread: thread})
	}
	return nil
}

func (p *threadPool) work(ctx context.Context, q *Queue, index int) {
	workersActive.Inc()
	defer workersActive.Dec()

	p.panics.Try(func() {
		q.Run(ctx, p.signal.Wait)
	})
	p.log.WithField("worker", index).Trace("work: worker thread stopped")
}

// Stops the signal, cancels the context given to tasks, and joins every
// spawned worker.
func (p *threadPool) shutdown() {
	p.signal.Stop()
	p.cancel()
	for _, w := range p.workers {
		w.thread.Join()
	}
	p.log.WithField("joined", len(p.workers)).Debug("work: worker threads joined")
}
