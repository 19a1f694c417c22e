package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/upsync-dev/upsync/lib/report"
	"github.com/upsync-dev/upsync/lib/shutdown"
)

// --------------------------------------------------------------------------
// MultiUpdater
// --------------------------------------------------------------------------

// MultiUpdater generalizes Updater to an associative store of
// key -> UpdateWindow. A single background goroutine always services the
// entry with the globally soonest earliest time; callbacks for different keys
// therefore execute strictly sequentially, and a callback for a given key is
// never concurrent with itself.
//
// Triggers on different keys never block each other: registration goes
// through an atomic per-key compute on a concurrent map. Only the scan for
// the soonest entry and its removal run on the scheduling goroutine.
//
// Thread-safety: All exported methods are safe for concurrent use.
type MultiUpdater[K comparable] struct {
	name     string
	update   func(key K) error
	reporter report.IErrorReporter
	critical bool

	pending *xsync.MapOf[K, UpdateWindow]

	wake      chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	liveID    uint64

	triggers *metrics.Counter
	fires    *metrics.Counter
}

// NewMultiUpdater creates a MultiUpdater and starts its background goroutine.
// The callback receives the key whose window expired; its returned error (and
// any panic) is forwarded to the reporter. opts may be nil.
func NewMultiUpdater[K comparable](name string, update func(key K) error, opts *Options) *MultiUpdater[K] {
	m := &MultiUpdater[K]{
		name:     name,
		update:   update,
		reporter: opts.reporter(),
		critical: opts.critical(),
		pending:  xsync.NewMapOf[K, UpdateWindow](),
		wake:     make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		triggers: metrics.GetOrCreateCounter(
			fmt.Sprintf(`upsync_sched_triggers_total{updater=%q}`, name),
		),
		fires: metrics.GetOrCreateCounter(
			fmt.Sprintf(`upsync_sched_fires_total{updater=%q}`, name),
		),
	}
	m.liveID = registerLive(name)
	go m.loop()
	return m
}

// Trigger merges the given window into the outstanding request for the key.
// An absent key is inserted as-is and always wakes the goroutine; a present
// key is merged and wakes the goroutine only if the merge changed the stored
// window.
//
// Thread-safety: This method is thread-safe; triggers on different keys do
// not serialize against each other.
func (m *MultiUpdater[K]) Trigger(key K, w UpdateWindow) {
	wakeNeeded := false
	m.pending.Compute(key, func(old UpdateWindow, loaded bool) (UpdateWindow, bool) {
		if !loaded {
			wakeNeeded = true
			return w, false
		}
		merged, clamped := Merge(old, w)
		wakeNeeded = clamped || !merged.Equal(old)
		return merged, false
	})

	m.triggers.Inc()
	if wakeNeeded {
		poke(m.wake)
	}
}

// TriggerNow requests an immediate firing for the key.
func (m *MultiUpdater[K]) TriggerNow(key K) {
	m.Trigger(key, Now())
}

// TriggerPostpone requests a firing for the key after the delay without an
// urgent bound.
func (m *MultiUpdater[K]) TriggerPostpone(key K, delay time.Duration) {
	m.Trigger(key, Postpone(delay))
}

// TriggerUrgent requests a firing for the key at exactly now+delay.
func (m *MultiUpdater[K]) TriggerUrgent(key K, delay time.Duration) {
	m.Trigger(key, Urgent(delay))
}

// PendingCount returns the number of keys with an outstanding window.
func (m *MultiUpdater[K]) PendingCount() int {
	return m.pending.Size()
}

// Close stops the background goroutine and waits for it to exit. A callback
// that is already executing runs to completion. Close is idempotent.
func (m *MultiUpdater[K]) Close() {
	m.closeOnce.Do(func() {
		close(m.closeCh)
		unregisterLive(m.liveID)
	})
	<-m.done
}

// loop is the dedicated scheduling goroutine.
func (m *MultiUpdater[K]) loop() {
	defer close(m.done)

	timer := newStoppedTimer()
	defer timer.Stop()

	for {
		if shutdown.Triggered() {
			return
		}

		key, window, found := m.soonest()

		// empty store: block until the next trigger
		if !found {
			select {
			case <-m.wake:
				continue
			case <-m.closeCh:
				return
			case <-shutdown.Done():
				return
			}
		}

		// not due yet: wait, then re-scan since a new or updated entry may
		// now be sooner
		if d := time.Until(window.earliest); d > 0 {
			timer.Reset(d)
			select {
			case <-m.wake:
				drainTimer(timer)
			case <-timer.C:
			case <-m.closeCh:
				return
			case <-shutdown.Done():
				return
			}
			continue
		}

		// due: remove exactly the entry we scanned. If a concurrent trigger
		// replaced it in the meantime, leave the new window in place and
		// re-evaluate.
		removed := false
		m.pending.Compute(key, func(old UpdateWindow, loaded bool) (UpdateWindow, bool) {
			if loaded && old.Equal(window) {
				removed = true
				return old, true
			}
			return old, !loaded
		})
		if !removed {
			continue
		}

		m.fires.Inc()
		k := key
		invoke(m.name, m.reporter, m.critical, func() error { return m.update(k) })
	}
}

// soonest scans the store for the entry with the minimum earliest time. Ties
// are broken arbitrarily.
func (m *MultiUpdater[K]) soonest() (key K, window UpdateWindow, found bool) {
	m.pending.Range(func(k K, w UpdateWindow) bool {
		if !found || w.earliest.Before(window.earliest) {
			key, window, found = k, w, true
		}
		return true
	})
	return key, window, found
}
