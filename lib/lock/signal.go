package lock

import (
	"sync"
)

// clearSignal is a broadcast signal built from channel generations. Waiters
// obtain the current generation channel via armed; pulse closes that channel,
// waking every waiter at once, and starts a fresh generation on the next call
// to armed.
//
// The signal carries no payload and no memory: a pulse with no armed waiters
// is lost. Callers therefore re-check their predicate between armed and the
// channel receive, which also makes spurious wakeups harmless.
type clearSignal struct {
	mu sync.Mutex
	ch chan struct{}
}

// armed returns a channel that will be closed by the next pulse.
func (s *clearSignal) armed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

// pulse wakes all currently armed waiters. If nobody is armed, it does nothing.
func (s *clearSignal) pulse() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}
