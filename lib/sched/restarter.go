package sched

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/upsync-dev/upsync/lib/report"
	"github.com/upsync-dev/upsync/lib/shutdown"
)

var (
	// ErrKeyExists is returned by Add for a key that is already scheduled.
	ErrKeyExists = errors.New("sched: key already exists")

	// ErrKeyNotFound is returned by Update and Remove for an unknown key.
	ErrKeyNotFound = errors.New("sched: key not found")
)

// DefaultFallBehindMeasure is the number of restart intervals a schedule may
// drift behind real time before the fall-behind callback fires.
const DefaultFallBehindMeasure = 3

// RestarterOptions configures a Restarter.
type RestarterOptions struct {
	// Reporter receives callback failures. Nil means report.Default.
	Reporter report.IErrorReporter

	// Critical marks callback execution as shutdown-blocking, see Options.
	Critical bool

	// FallBehindMeasure overrides DefaultFallBehindMeasure when positive.
	// It is shared across all keys of the instance.
	FallBehindMeasure int
}

func (o *RestarterOptions) reporter() report.IErrorReporter {
	if o == nil || o.Reporter == nil {
		return report.Default
	}
	return o.Reporter
}

func (o *RestarterOptions) critical() bool {
	return o != nil && o.Critical
}

func (o *RestarterOptions) measure() int {
	if o == nil || o.FallBehindMeasure <= 0 {
		return DefaultFallBehindMeasure
	}
	return o.FallBehindMeasure
}

// --------------------------------------------------------------------------
// Restarter
// --------------------------------------------------------------------------

// restartEntry holds the cadence state of one key. A zero lastStart means
// "never started, due immediately".
type restartEntry struct {
	delay     time.Duration
	lastStart time.Time
}

func (e *restartEntry) nextStart() time.Time {
	if e.lastStart.IsZero() {
		return time.Time{}
	}
	return e.lastStart.Add(e.delay)
}

// Restarter is the periodic-restart variant of MultiUpdater: instead of
// one-shot debounced triggers, every key has a fixed restart interval and is
// perpetually rescheduled. Each firing advances the schedule by exactly the
// restart delay (not to "now"), preserving a steady cadence. When the
// consumer cannot keep up and the schedule drifts more than
// FallBehindMeasure intervals behind real time, the fall-behind callback is
// invoked for the key and the schedule is clamped, preventing unbounded
// catch-up bursts.
//
// Thread-safety: All exported methods are safe for concurrent use.
type Restarter[K comparable] struct {
	name         string
	update       func(key K) error
	onFallBehind func(key K)
	reporter     report.IErrorReporter
	critical     bool
	measure      int

	mu      sync.Mutex
	entries map[K]*restartEntry
	queue   *deadlineQueue[K]

	wake      chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	liveID    uint64

	fires       *metrics.Counter
	fallBehinds *metrics.Counter
}

// NewRestarter creates a Restarter and starts its background goroutine.
// update runs on every scheduled restart of a key; onFallBehind (optional)
// runs when that key's schedule has fallen behind. opts may be nil.
func NewRestarter[K comparable](name string, update func(key K) error, onFallBehind func(key K), opts *RestarterOptions) *Restarter[K] {
	r := &Restarter[K]{
		name:         name,
		update:       update,
		onFallBehind: onFallBehind,
		reporter:     opts.reporter(),
		critical:     opts.critical(),
		measure:      opts.measure(),
		entries:      make(map[K]*restartEntry),
		queue:        newDeadlineQueue[K](),
		wake:         make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
		fires: metrics.GetOrCreateCounter(
			fmt.Sprintf(`upsync_sched_fires_total{updater=%q}`, name),
		),
		fallBehinds: metrics.GetOrCreateCounter(
			fmt.Sprintf(`upsync_sched_fall_behinds_total{updater=%q}`, name),
		),
	}
	r.liveID = registerLive(name)
	go r.loop()
	return r
}

// Add schedules the key with the given restart delay, due immediately. It
// fails with ErrKeyExists if the key is already scheduled and with
// ErrInvalidDelay for a non-positive delay.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Restarter[K]) Add(key K, delay time.Duration) error {
	if delay <= 0 {
		return fmt.Errorf("%w: restart delay %v must be positive", ErrInvalidDelay, delay)
	}

	r.mu.Lock()
	if _, exists := r.entries[key]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrKeyExists, key)
	}
	e := &restartEntry{delay: delay}
	r.entries[key] = e
	r.queue.Set(key, e.nextStart())
	r.mu.Unlock()

	poke(r.wake)
	return nil
}

// Update changes the restart delay of an existing key. It fails with
// ErrKeyNotFound if the key is not scheduled and with ErrInvalidDelay for a
// non-positive delay.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Restarter[K]) Update(key K, delay time.Duration) error {
	if delay <= 0 {
		return fmt.Errorf("%w: restart delay %v must be positive", ErrInvalidDelay, delay)
	}

	r.mu.Lock()
	e, exists := r.entries[key]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}
	e.delay = delay
	r.queue.Set(key, e.nextStart())
	r.mu.Unlock()

	poke(r.wake)
	return nil
}

// Remove unschedules the key. It fails with ErrKeyNotFound if the key is not
// scheduled.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Restarter[K]) Remove(key K) error {
	r.mu.Lock()
	if _, exists := r.entries[key]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}
	delete(r.entries, key)
	r.queue.Remove(key)
	r.mu.Unlock()

	poke(r.wake)
	return nil
}

// Len returns the number of scheduled keys.
func (r *Restarter[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the background goroutine and waits for it to exit. A callback
// that is already executing runs to completion. Close is idempotent.
func (r *Restarter[K]) Close() {
	r.closeOnce.Do(func() {
		close(r.closeCh)
		unregisterLive(r.liveID)
	})
	<-r.done
}

// loop is the dedicated scheduling goroutine.
func (r *Restarter[K]) loop() {
	defer close(r.done)

	timer := newStoppedTimer()
	defer timer.Stop()

	for {
		if shutdown.Triggered() {
			return
		}

		r.mu.Lock()
		key, due, found := r.queue.Peek()
		r.mu.Unlock()

		// nothing scheduled: block until Add
		if !found {
			select {
			case <-r.wake:
				continue
			case <-r.closeCh:
				return
			case <-shutdown.Done():
				return
			}
		}

		// a zero due time means "never started, due immediately"
		if !due.IsZero() {
			if d := time.Until(due); d > 0 {
				timer.Reset(d)
				select {
				case <-r.wake:
					drainTimer(timer)
				case <-timer.C:
				case <-r.closeCh:
					return
				case <-shutdown.Done():
					return
				}
				continue
			}
		}

		ok, fellBehind := r.rotate(key)
		if !ok {
			// removed between Peek and rotate
			continue
		}
		if fellBehind {
			r.fallBehinds.Inc()
			if cb := r.onFallBehind; cb != nil {
				k := key
				invoke(r.name, r.reporter, false, func() error {
					cb(k)
					return nil
				})
			}
		}

		r.fires.Inc()
		k := key
		invoke(r.name, r.reporter, r.critical, func() error { return r.update(k) })
	}
}

// rotate advances the key's schedule by exactly one restart delay and
// re-queues it. ok is false if the key was removed in the meantime.
// fellBehind reports whether the schedule drifted behind real time by more
// than FallBehindMeasure intervals, in which case it is clamped to that
// floor.
func (r *Restarter[K]) rotate(key K) (ok, fellBehind bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[key]
	if !exists {
		return false, false
	}

	now := time.Now()
	if e.lastStart.IsZero() {
		e.lastStart = now
	} else {
		e.lastStart = e.lastStart.Add(e.delay)
	}

	floor := now.Add(-time.Duration(r.measure) * e.delay)
	if e.lastStart.Before(floor) {
		e.lastStart = floor
		fellBehind = true
	}

	r.queue.Set(key, e.nextStart())
	return true, fellBehind
}
