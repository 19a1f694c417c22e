package lock

import (
	"sync"
)

// ObjectLocker is a scoped wrapper around a monitor-style mutex guarding a
// shared object. It is constructible only over a sync.Locker reference, so it
// can never wrap a copy of the state it protects; the type system enforces
// what the original design verified at runtime.
//
// An ObjectLocker is owned by a single goroutine and is not safe for
// concurrent use. The underlying Locker provides the actual exclusion.
type ObjectLocker struct {
	locker sync.Locker
	locked bool
}

// NewObjectLocker creates an ObjectLocker over the given Locker.
func NewObjectLocker(l sync.Locker) *ObjectLocker {
	return &ObjectLocker{locker: l}
}

// Lock acquires the underlying lock.
func (ol *ObjectLocker) Lock() {
	ol.locker.Lock()
	ol.locked = true
}

// TryLock attempts a non-blocking acquisition. It only succeeds when the
// underlying Locker supports TryLock (e.g. *sync.Mutex); otherwise it falls
// back to a blocking Lock and reports true.
func (ol *ObjectLocker) TryLock() bool {
	type tryLocker interface {
		TryLock() bool
	}
	if tl, ok := ol.locker.(tryLocker); ok {
		if !tl.TryLock() {
			return false
		}
		ol.locked = true
		return true
	}
	ol.Lock()
	return true
}

// Unlock releases the lock if held. Releasing an unheld ObjectLocker is a
// no-op, so it is safe on every exit path.
func (ol *ObjectLocker) Unlock() {
	if !ol.locked {
		return
	}
	ol.locked = false
	ol.locker.Unlock()
}

// IsLocked reports whether this ObjectLocker currently holds the lock.
func (ol *ObjectLocker) IsLocked() bool {
	return ol.locked
}

// WithLock executes fn while holding the lock, releasing it even if fn
// panics.
func (ol *ObjectLocker) WithLock(fn func()) {
	ol.Lock()
	defer ol.Unlock()
	fn()
}
