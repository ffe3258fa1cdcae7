package work

import (
	"container/list"
	"sync"
)

// Event is a broadcast notification primitive. Goroutines register interest
// with Listen and are woken by Notify. A notification only reaches listeners
// which were registered when it was sent; callers that must not miss one
// register first and then re-check their condition.
//
// The zero value is ready to use.
type Event struct {
	mutex     sync.Mutex
	listeners list.List
}

// A registration of interest in an Event.
type Listener struct {
	event    *Event
	elem     *list.Element
	ch       chan struct{}
	notified bool
}

// Registers a new listener.
func (e *Event) Listen() *Listener {
	l := &Listener{event: e, ch: make(chan struct{})}
	e.mutex.Lock()
	l.elem = e.listeners.PushBack(l)
	e.mutex.Unlock()
	return l
}

// Wakes up to n registered listeners, oldest first, and returns how many were
// woken. Woken listeners are deregistered.
func (e *Event) Notify(n int) int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	woken := 0
	for woken < n {
		front := e.listeners.Front()
		if front == nil {
			break
		}
		l := e.listeners.Remove(front).(*Listener)
		l.elem = nil
		l.notified = true
		close(l.ch)
		woken++
	}
	return woken
}

// Wakes every registered listener.
func (e *Event) NotifyAll() int {
	return e.Notify(int(^uint(0) >> 1))
}

// Returns the number of registered listeners.
func (e *Event) Len() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.listeners.Len()
}

// Returns a channel which is closed once this listener is notified.
func (l *Listener) C() <-chan struct{} {
	return l.ch
}

// Blocks until this listener is notified.
func (l *Listener) Wait() {
	<-l.ch
}

// Deregisters this listener. If it was already notified, this is a no-op.
func (l *Listener) Discard() {
	e := l.event
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if l.notified || l.elem == nil {
		return
	}
	e.listeners.Remove(l.elem)
	l.elem = nil
}
