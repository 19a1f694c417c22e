package lock

import (
	"sync"
	"testing"
)

// TestObjectLockerScoping tests lock/unlock behavior on every exit path
func TestObjectLockerScoping(t *testing.T) {
	var mu sync.Mutex
	ol := NewObjectLocker(&mu)

	if ol.IsLocked() {
		t.Error("fresh ObjectLocker should not be locked")
	}

	ol.Lock()
	if !ol.IsLocked() {
		t.Error("ObjectLocker should report locked after Lock")
	}
	ol.Unlock()
	if ol.IsLocked() {
		t.Error("ObjectLocker should report unlocked after Unlock")
	}

	// releasing an unheld locker is a no-op
	ol.Unlock()

	// the underlying mutex must be free again
	if !mu.TryLock() {
		t.Fatal("underlying mutex should be free")
	}
	mu.Unlock()
}

// TestObjectLockerTryLock tests the non-blocking acquisition path
func TestObjectLockerTryLock(t *testing.T) {
	var mu sync.Mutex
	ol := NewObjectLocker(&mu)

	mu.Lock()
	if ol.TryLock() {
		t.Error("TryLock should fail while the mutex is held elsewhere")
	}
	mu.Unlock()

	if !ol.TryLock() {
		t.Error("TryLock should succeed on a free mutex")
	}
	if !ol.IsLocked() {
		t.Error("successful TryLock should mark the locker as held")
	}
	ol.Unlock()
}

// TestObjectLockerWithLock tests the closure form, including panic safety
func TestObjectLockerWithLock(t *testing.T) {
	var mu sync.Mutex
	ol := NewObjectLocker(&mu)

	ran := false
	ol.WithLock(func() {
		ran = true
		if !ol.IsLocked() {
			t.Error("lock should be held inside WithLock")
		}
	})
	if !ran {
		t.Error("WithLock should run the closure")
	}

	// the lock must be released even if the closure panics
	func() {
		defer func() { _ = recover() }()
		ol.WithLock(func() { panic("boom") })
	}()

	if !mu.TryLock() {
		t.Fatal("mutex should be released after a panicking WithLock")
	}
	mu.Unlock()
}
