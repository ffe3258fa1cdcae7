package work

import (
	"sync/atomic"
)

// StopSignal is a one-shot broadcast stop flag shared by the workers of a
// pool. It moves from running to stopped exactly once and never resets.
type StopSignal struct {
	stopped atomic.Bool
	events  Event

	// Called between the first flag check and listener registration in
	// Wait. Used by tests to force the stop-before-listen interleaving.
	beforeListen func()
}

// Creates a new signal in the running state.
func NewStopSignal() *StopSignal {
	return &StopSignal{}
}

// Blocks until Stop has been called. Returns immediately if it already was.
//
// The listener is registered before the flag is checked a second time, so a
// Stop which lands between the first check and registration is still seen.
func (s *StopSignal) Wait() {
	for {
		if s.stopped.Load() {
			return
		}

		if s.beforeListen != nil {
			s.beforeListen()
		}
		listener := s.events.Listen()

		if s.stopped.Load() {
			listener.Discard()
			return
		}

		// A wakeup without the flag set sends us around again.
		listener.Wait()
	}
}

// Stops the signal and wakes every waiter. Safe to call more than once and
// from several goroutines at the same time.
func (s *StopSignal) Stop() {
	s.stopped.Store(true)
	s.events.NotifyAll()
}

// Returns true once Stop has been called.
func (s *StopSignal) Stopped() bool {
	return s.stopped.Load()
}
