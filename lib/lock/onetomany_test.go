package lock

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestMutualExclusion tests that One-mode and Many-mode critical sections
// never overlap and that One mode is exclusive, across many interleavings.
func TestMutualExclusion(t *testing.T) {
	l := New("test-mutex")

	var activeOne, activeMany atomic.Int64
	var violations atomic.Int64

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// One-mode workers, half of them with priority
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(priority bool) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				l.WithOne(priority, func() {
					if activeOne.Add(1) != 1 {
						violations.Add(1)
					}
					if activeMany.Load() != 0 {
						violations.Add(1)
					}
					activeOne.Add(-1)
				})
			}
		}(i%2 == 0)
	}

	// Many-mode workers
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				l.WithMany(func() {
					activeMany.Add(1)
					if activeOne.Load() != 0 {
						violations.Add(1)
					}
					activeMany.Add(-1)
				})
			}
		}()
	}

	time.Sleep(300 * time.Millisecond)
	close(stop)
	wg.Wait()

	if n := violations.Load(); n != 0 {
		t.Errorf("observed %d mutual-exclusion violations", n)
	}
}

// TestManyConcurrency tests that N goroutines can hold Many mode at the same
// time, i.e. Many-mode throughput is not serialized.
func TestManyConcurrency(t *testing.T) {
	l := New("test-many")

	const n = 8
	var inside atomic.Int64
	allInside := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			l.WithMany(func() {
				if inside.Add(1) == n {
					close(allInside)
				}
				<-release
			})
		}()
	}

	select {
	case <-allInside:
		// all n holders are inside simultaneously
	case <-time.After(2 * time.Second):
		t.Errorf("only %d of %d Many holders entered concurrently", inside.Load(), n)
	}
	close(release)
	wg.Wait()
}

// TestPriorityBound tests that under continuous Many traffic, a priority
// One-mode request is admitted instead of being starved indefinitely.
func TestPriorityBound(t *testing.T) {
	l := New("test-priority")

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// steady Many-mode arrivals
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				l.WithMany(func() {
					time.Sleep(time.Millisecond)
				})
			}
		}()
	}

	// let the Many traffic build up
	time.Sleep(50 * time.Millisecond)

	acquired := make(chan struct{})
	go func() {
		l.WithOne(true, func() {})
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Error("priority One-mode request was starved by sustained Many traffic")
	}

	close(stop)
	wg.Wait()
}

// TestGuardReuse tests that re-beginning a used guard is an error.
func TestGuardReuse(t *testing.T) {
	l := New("test-reuse")

	og := l.NewOneGuard()
	if err := og.Acquire(false); err != nil {
		t.Fatalf("fresh guard should acquire: %v", err)
	}
	og.Release()
	if err := og.Acquire(false); !errors.Is(err, ErrGuardReused) {
		t.Errorf("re-acquiring a used One guard should fail with ErrGuardReused, got %v", err)
	}

	mg := l.NewManyGuard()
	if err := mg.Acquire(); err != nil {
		t.Fatalf("fresh guard should acquire: %v", err)
	}
	mg.Release()
	if err := mg.Acquire(); !errors.Is(err, ErrGuardReused) {
		t.Errorf("re-acquiring a used Many guard should fail with ErrGuardReused, got %v", err)
	}
	if _, err := mg.TryAcquire(); !errors.Is(err, ErrGuardReused) {
		t.Errorf("TryAcquire on a used guard should fail with ErrGuardReused, got %v", err)
	}
}

// TestReleaseIdempotent tests that double release is harmless and the lock
// remains usable.
func TestReleaseIdempotent(t *testing.T) {
	l := New("test-release")

	g := l.AcquireOne(false)
	g.Release()
	g.Release() // no-op

	done := make(chan struct{})
	go func() {
		l.WithMany(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("lock should be free after guard release")
	}
}

// TestTryAcquire tests the non-blocking admission paths.
func TestTryAcquire(t *testing.T) {
	l := New("test-try")

	// free lock: try succeeds
	if !l.TryWithOne(func() {}) {
		t.Error("TryWithOne should succeed on a free lock")
	}

	// Many mode held: One-mode try must fail without blocking
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		l.WithMany(func() {
			close(held)
			<-release
		})
	}()
	<-held

	if l.TryWithOne(func() {}) {
		t.Error("TryWithOne should fail while Many mode is held")
	}

	// Many-mode try succeeds alongside the existing Many holder
	mg := l.NewManyGuard()
	if ok, err := mg.TryAcquire(); err != nil || !ok {
		t.Errorf("Many-mode TryAcquire should succeed alongside Many holders, got ok=%v err=%v", ok, err)
	}
	mg.Release()
	close(release)

	// One mode held: Many-mode try must fail
	oneHeld := make(chan struct{})
	oneRelease := make(chan struct{})
	go func() {
		l.WithOne(false, func() {
			close(oneHeld)
			<-oneRelease
		})
	}()
	<-oneHeld

	mg2 := l.NewManyGuard()
	if ok, _ := mg2.TryAcquire(); ok {
		t.Error("Many-mode TryAcquire should fail while One mode is held")
	}
	close(oneRelease)
}
