package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/upsync-dev/upsync/lib/report"
	"github.com/upsync-dev/upsync/lib/shutdown"
)

// Logger is the package logger, named "sched" in the log output.
var Logger = logger.GetLogger("sched")

// Options configures an Updater or MultiUpdater.
type Options struct {
	// Reporter receives callback failures. Nil means report.Default.
	Reporter report.IErrorReporter

	// Critical marks callback execution as shutdown-blocking: while the
	// callback runs, the process-wide blocker group is held, so a graceful
	// exit waits for it to finish.
	Critical bool
}

func (o *Options) reporter() report.IErrorReporter {
	if o == nil || o.Reporter == nil {
		return report.Default
	}
	return o.Reporter
}

func (o *Options) critical() bool {
	return o != nil && o.Critical
}

// --------------------------------------------------------------------------
// Updater
// --------------------------------------------------------------------------

// Updater is the single-target debounced scheduler. It owns one background
// goroutine, a wake signal and at most one outstanding UpdateWindow; Trigger
// merges new requests into that window and the goroutine fires the callback
// once the window's earliest time is reached.
//
// Thread-safety: All exported methods are safe for concurrent use.
type Updater struct {
	name     string
	update   func() error
	reporter report.IErrorReporter
	critical bool

	mu      sync.Mutex
	pending *UpdateWindow // nil = idle

	wake      chan struct{} // cap 1, coalesces pokes
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	liveID    uint64

	triggers *metrics.Counter
	fires    *metrics.Counter
}

// NewUpdater creates an Updater and starts its background goroutine. The
// name identifies the instance in diagnostics and metrics. The callback's
// returned error (and any panic) is forwarded to the reporter; it never
// terminates the loop. opts may be nil.
func NewUpdater(name string, update func() error, opts *Options) *Updater {
	u := &Updater{
		name:     name,
		update:   update,
		reporter: opts.reporter(),
		critical: opts.critical(),
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
	u.liveID = registerLive(name)
	go u.loop()
	return u
}

// Trigger merges the given window into the outstanding request. The
// background goroutine is woken if there was no outstanding request, if the
// merge clamped, or if the merged earliest time moved strictly earlier.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (u *Updater) Trigger(w UpdateWindow) {
	u.mu.Lock()
	wakeNeeded := false
	if u.pending == nil {
		u.pending = &w
		wakeNeeded = true
	} else {
		merged, clamped := Merge(*u.pending, w)
		wakeNeeded = clamped || merged.earliest.Before(u.pending.earliest)
		u.pending = &merged
	}
	u.mu.Unlock()

	u.triggers.Inc()
	if wakeNeeded {
		poke(u.wake)
	}
}

// TriggerNow requests an immediate firing.
func (u *Updater) TriggerNow() {
	u.Trigger(Now())
}

// TriggerPostpone requests a firing after the delay without an urgent bound.
func (u *Updater) TriggerPostpone(delay time.Duration) {
	u.Trigger(Postpone(delay))
}

// TriggerUrgent requests a firing at exactly now+delay.
func (u *Updater) TriggerUrgent(delay time.Duration) {
	u.Trigger(Urgent(delay))
}

// Close stops the background goroutine and waits for it to exit. A callback
// that is already executing runs to completion. Close is idempotent.
func (u *Updater) Close() {
	u.closeOnce.Do(func() {
		close(u.closeCh)
		unregisterLive(u.liveID)
	})
	<-u.done
}

// loop is the dedicated scheduling goroutine.
func (u *Updater) loop() {
	defer close(u.done)

	timer := newStoppedTimer()
	defer timer.Stop()

	for {
		if shutdown.Triggered() {
			return
		}

		u.mu.Lock()
		w := u.pending
		u.mu.Unlock()

		// idle: block until the next trigger
		if w == nil {
			select {
			case <-u.wake:
				continue
			case <-u.closeCh:
				return
			case <-shutdown.Done():
				return
			}
		}

		// not due yet: wait out the remaining time, restart on wake so the
		// (possibly updated) pending window is re-read
		if d := time.Until(w.earliest); d > 0 {
			timer.Reset(d)
			select {
			case <-u.wake:
				drainTimer(timer)
			case <-timer.C:
			case <-u.closeCh:
				return
			case <-shutdown.Done():
				return
			}
			continue
		}

		// due: take and clear the pending window, then run the callback
		u.mu.Lock()
		u.pending = nil
		u.mu.Unlock()

		u.fires.Inc()
		invoke(u.name, u.reporter, u.critical, u.update)
	}
}

// --------------------------------------------------------------------------
// shared loop helpers
// --------------------------------------------------------------------------

// poke delivers a wake signal without blocking; a signal already pending is
// enough.
func poke(wake chan struct{}) {
	select {
	case wake <- struct{}{}:
	default:
	}
}

// newStoppedTimer returns a timer that is not running and whose channel is
// empty.
func newStoppedTimer() *time.Timer {
	t := time.NewTimer(0)
	if !t.Stop() {
		<-t.C
	}
	return t
}

// drainTimer stops a timer and clears its channel if it fired concurrently.
func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// invoke runs a callback, converting panics to errors and forwarding every
// failure to the reporter. Failures during confirmed shutdown are dropped.
func invoke(name string, reporter report.IErrorReporter, critical bool, fn func() error) {
	if critical {
		shutdown.AddBlocker()
		defer shutdown.BlockerDone()
	}

	Logger.Debugf("update %q firing", name)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()

	if err != nil && !shutdown.Triggered() {
		reporter.ReportError(fmt.Errorf("update %q: %w", name, err))
	}
}
