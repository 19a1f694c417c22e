package lock

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// ErrGuardReused is returned when Acquire is called on a guard that has
// already begun or finished an acquisition. Guards are single-use.
var ErrGuardReused = errors.New("lock: guard already used")

// --------------------------------------------------------------------------
// Guard state machine
// --------------------------------------------------------------------------

// guardState tracks the lifecycle of a guard:
// guardUnlocked -> guardAcquiring -> guardLocked -> guardReleased.
// guardReleased is terminal; Release from any non-terminal state performs
// cleanup idempotently.
type guardState int

const (
	guardUnlocked guardState = iota
	guardAcquiring
	guardLocked
	guardReleased
)

// --------------------------------------------------------------------------
// OneToManyLock
// --------------------------------------------------------------------------

// OneToManyLock is the dual-mode lock. The zero value is not usable; create
// instances with New.
type OneToManyLock struct {
	doingOne  atomic.Int64
	doingMany atomic.Int64

	// set (pulsed) exactly when the corresponding counter drops to zero
	oneClear  clearSignal
	manyClear clearSignal

	// serializes One-mode holders after admission succeeds; never touched
	// by Many-mode admission
	oneMu sync.Mutex

	oneAcquired  *metrics.Counter
	manyAcquired *metrics.Counter
}

// New creates a OneToManyLock. The name identifies the lock in metrics and
// must be stable for the lifetime of the instance.
func New(name string) *OneToManyLock {
	return &OneToManyLock{
		oneAcquired: metrics.GetOrCreateCounter(
			fmt.Sprintf(`upsync_lock_acquired_total{lock=%q,mode="one"}`, name),
		),
		manyAcquired: metrics.GetOrCreateCounter(
			fmt.Sprintf(`upsync_lock_acquired_total{lock=%q,mode="many"}`, name),
		),
	}
}

// NewOneGuard returns a fresh, unlocked One-mode guard for this lock.
func (l *OneToManyLock) NewOneGuard() *OneGuard {
	return &OneGuard{l: l}
}

// NewManyGuard returns a fresh, unlocked Many-mode guard for this lock.
func (l *OneToManyLock) NewManyGuard() *ManyGuard {
	return &ManyGuard{l: l}
}

// AcquireOne blocks until One mode is held and returns the locked guard.
// See OneGuard.Acquire for the admission policies.
func (l *OneToManyLock) AcquireOne(withPriority bool) *OneGuard {
	g := l.NewOneGuard()
	// a fresh guard cannot fail to begin
	_ = g.Acquire(withPriority)
	return g
}

// AcquireMany blocks until Many mode is held and returns the locked guard.
func (l *OneToManyLock) AcquireMany() *ManyGuard {
	g := l.NewManyGuard()
	_ = g.Acquire()
	return g
}

// WithOne runs fn while holding the lock in One mode. The lock is released
// even if fn panics.
func (l *OneToManyLock) WithOne(withPriority bool, fn func()) {
	g := l.AcquireOne(withPriority)
	defer g.Release()
	fn()
}

// WithMany runs fn while holding the lock in Many mode. The lock is released
// even if fn panics.
func (l *OneToManyLock) WithMany(fn func()) {
	g := l.AcquireMany()
	defer g.Release()
	fn()
}

// TryWithOne runs fn in One mode if the lock can be acquired without
// blocking. It reports whether fn was run.
func (l *OneToManyLock) TryWithOne(fn func()) bool {
	g := l.NewOneGuard()
	ok, _ := g.TryAcquire()
	if !ok {
		return false
	}
	defer g.Release()
	fn()
	return true
}

// --------------------------------------------------------------------------
// One-mode guard
// --------------------------------------------------------------------------

// OneGuard is a scoped guard for One mode. A guard is single-use and owned by
// one goroutine; it must not be shared or copied.
type OneGuard struct {
	l          *OneToManyLock
	state      guardState
	registered bool // doingOne registration held
	muHeld     bool // internal One-mode mutex held
}

// Acquire blocks until the guard holds the lock in One mode.
//
// Without priority, the guard registers itself, checks for running Many-mode
// holders, and if any exist withdraws its registration before waiting for the
// Many cohort to clear. Newly arriving Many traffic can therefore overtake it
// indefinitely.
//
// With priority, the registration is kept while the Many cohort drains, which
// stalls further Many admission and bounds the wait to one drain cycle.
//
// Acquire returns ErrGuardReused if the guard has been used before.
func (g *OneGuard) Acquire(withPriority bool) error {
	if g.state != guardUnlocked {
		return ErrGuardReused
	}
	g.state = guardAcquiring
	l := g.l

	if withPriority {
		l.doingOne.Add(1)
		g.registered = true
		for l.doingMany.Load() != 0 {
			ch := l.manyClear.armed()
			// re-check after arming, the cohort may have drained in between
			if l.doingMany.Load() == 0 {
				break
			}
			<-ch
		}
	} else {
		for {
			l.doingOne.Add(1)
			g.registered = true
			if l.doingMany.Load() == 0 {
				break
			}
			// withdraw and let the running Many cohort finish
			g.registered = false
			if l.doingOne.Add(-1) == 0 {
				l.oneClear.pulse()
			}
			ch := l.manyClear.armed()
			if l.doingMany.Load() == 0 {
				continue
			}
			<-ch
		}
	}

	l.oneMu.Lock()
	g.muHeld = true
	g.state = guardLocked
	l.oneAcquired.Inc()
	return nil
}

// TryAcquire attempts a non-blocking One-mode acquisition. It reports whether
// the lock was taken, and returns ErrGuardReused for a used guard.
func (g *OneGuard) TryAcquire() (bool, error) {
	if g.state != guardUnlocked {
		return false, ErrGuardReused
	}
	g.state = guardAcquiring
	l := g.l

	l.doingOne.Add(1)
	g.registered = true
	if l.doingMany.Load() != 0 || !l.oneMu.TryLock() {
		g.cleanup()
		return false, nil
	}
	g.muHeld = true
	g.state = guardLocked
	l.oneAcquired.Inc()
	return true, nil
}

// Release ends the hold. It is idempotent and safe to call from any guard
// state: a guard that only partially completed acquisition undoes exactly the
// registration it performed and never unlocks a mutex it never locked.
func (g *OneGuard) Release() {
	if g.state == guardReleased {
		return
	}
	g.cleanup()
}

func (g *OneGuard) cleanup() {
	g.state = guardReleased
	if g.muHeld {
		g.muHeld = false
		g.l.oneMu.Unlock()
	}
	if g.registered {
		g.registered = false
		if g.l.doingOne.Add(-1) == 0 {
			g.l.oneClear.pulse()
		}
	}
}

// --------------------------------------------------------------------------
// Many-mode guard
// --------------------------------------------------------------------------

// ManyGuard is a scoped guard for Many mode. A guard is single-use and owned
// by one goroutine; it must not be shared or copied.
type ManyGuard struct {
	l          *OneToManyLock
	state      guardState
	registered bool
}

// Acquire blocks until the guard holds the lock in Many mode. Many admission
// has no priority variant: the guard registers itself, and if One mode is
// active it withdraws and waits for the One holder to clear before retrying.
//
// Acquire returns ErrGuardReused if the guard has been used before.
func (g *ManyGuard) Acquire() error {
	if g.state != guardUnlocked {
		return ErrGuardReused
	}
	g.state = guardAcquiring
	l := g.l

	for {
		l.doingMany.Add(1)
		g.registered = true
		if l.doingOne.Load() == 0 {
			break
		}
		g.registered = false
		if l.doingMany.Add(-1) == 0 {
			l.manyClear.pulse()
		}
		ch := l.oneClear.armed()
		if l.doingOne.Load() == 0 {
			continue
		}
		<-ch
	}

	g.state = guardLocked
	l.manyAcquired.Inc()
	return nil
}

// TryAcquire attempts a non-blocking Many-mode acquisition. It reports
// whether the lock was taken, and returns ErrGuardReused for a used guard.
func (g *ManyGuard) TryAcquire() (bool, error) {
	if g.state != guardUnlocked {
		return false, ErrGuardReused
	}
	g.state = guardAcquiring
	l := g.l

	l.doingMany.Add(1)
	g.registered = true
	if l.doingOne.Load() != 0 {
		g.cleanup()
		return false, nil
	}
	g.state = guardLocked
	l.manyAcquired.Inc()
	return true, nil
}

// Release ends the hold. It is idempotent and safe to call from any guard
// state.
func (g *ManyGuard) Release() {
	if g.state == guardReleased {
		return
	}
	g.cleanup()
}

func (g *ManyGuard) cleanup() {
	g.state = guardReleased
	if g.registered {
		g.registered = false
		if g.l.doingMany.Add(-1) == 0 {
			g.l.manyClear.pulse()
		}
	}
}
