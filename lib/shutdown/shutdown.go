package shutdown

import (
	"sync"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// Process-wide shutdown latch
// --------------------------------------------------------------------------

var (
	triggered atomic.Bool
	done      = make(chan struct{})
	blockers  sync.WaitGroup
)

// Trigger sets the process-wide shutdown flag. The first call closes the
// channel returned by Done; subsequent calls do nothing.
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func Trigger() {
	if triggered.CompareAndSwap(false, true) {
		close(done)
	}
}

// Triggered reports whether shutdown has been requested.
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func Triggered() bool {
	return triggered.Load()
}

// Done returns a channel that is closed once shutdown has been triggered.
// Background loops select on this channel next to their own wake signals.
func Done() <-chan struct{} {
	return done
}

// --------------------------------------------------------------------------
// Blocker group
// --------------------------------------------------------------------------

// AddBlocker registers one in-flight operation that should delay process
// exit. Every AddBlocker call must be paired with exactly one BlockerDone.
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func AddBlocker() {
	blockers.Add(1)
}

// BlockerDone releases a blocker previously registered with AddBlocker.
func BlockerDone() {
	blockers.Done()
}

// WaitBlockers waits until all registered blockers have finished or the given
// timeout has elapsed, whichever comes first. It returns true if all blockers
// finished in time.
//
// Thread-safety: This function is thread-safe, but is intended to be called
// once from the process entry point after Trigger.
func WaitBlockers(timeout time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		blockers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return true
	case <-time.After(timeout):
		return false
	}
}
