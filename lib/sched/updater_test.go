package sched

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// collectingReporter records every reported error for later inspection.
type collectingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (c *collectingReporter) ReportError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collectingReporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func (c *collectingReporter) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, err := range c.errs {
		if strings.Contains(err.Error(), substr) {
			return true
		}
	}
	return false
}

// TestDebounceCoalescing tests that rapid Postpone triggers collapse into a
// single firing no earlier than the window after the last trigger.
func TestDebounceCoalescing(t *testing.T) {
	var fires atomic.Int32
	fired := make(chan time.Time, 8)

	u := NewUpdater("test-debounce", func() error {
		fires.Add(1)
		fired <- time.Now()
		return nil
	}, nil)
	defer u.Close()

	const window = 80 * time.Millisecond
	var lastTrigger time.Time
	for i := 0; i < 3; i++ {
		lastTrigger = time.Now()
		u.TriggerPostpone(window)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case at := <-fired:
		// allow a small epsilon for clock granularity
		if at.Before(lastTrigger.Add(window - 5*time.Millisecond)) {
			t.Errorf("fired %v after last trigger, expected at least %v", at.Sub(lastTrigger), window)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("updater never fired")
	}

	// no further firing may follow
	select {
	case <-fired:
		t.Error("coalesced triggers must result in exactly one firing")
	case <-time.After(3 * window):
	}

	if n := fires.Load(); n != 1 {
		t.Errorf("expected 1 firing, got %d", n)
	}
}

// TestUrgentOverride tests that an urgent trigger overrides a long postpone.
func TestUrgentOverride(t *testing.T) {
	fired := make(chan struct{}, 1)

	u := NewUpdater("test-urgent", func() error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}, nil)
	defer u.Close()

	u.TriggerPostpone(10 * time.Second)
	u.TriggerUrgent(50 * time.Millisecond)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("urgent trigger should fire within ~50ms, not after the 10s postpone")
	}
}

// TestCallbackErrorReporting tests that callback errors reach the reporter
// and never kill the loop.
func TestCallbackErrorReporting(t *testing.T) {
	reporter := &collectingReporter{}
	var fires atomic.Int32

	u := NewUpdater("test-errors", func() error {
		if fires.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	}, &Options{Reporter: reporter})
	defer u.Close()

	u.TriggerNow()
	waitFor(t, time.Second, func() bool { return reporter.count() == 1 })
	if !reporter.contains("boom") {
		t.Errorf("reported error should wrap the callback error, got %v", reporter.errs)
	}

	// the loop must survive and service the next trigger
	u.TriggerNow()
	waitFor(t, time.Second, func() bool { return fires.Load() == 2 })
}

// TestCallbackPanicReporting tests that callback panics are converted to
// reported errors.
func TestCallbackPanicReporting(t *testing.T) {
	reporter := &collectingReporter{}

	u := NewUpdater("test-panic", func() error {
		panic("kaput")
	}, &Options{Reporter: reporter})
	defer u.Close()

	u.TriggerNow()
	waitFor(t, time.Second, func() bool { return reporter.count() >= 1 })
	if !reporter.contains("kaput") {
		t.Errorf("reported error should carry the panic value, got %v", reporter.errs)
	}
}

// TestTriggerDuringExecution tests that a trigger arriving while the callback
// runs starts a fresh entry and leads to a second invocation.
func TestTriggerDuringExecution(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var fires atomic.Int32

	u := NewUpdater("test-reentry", func() error {
		if fires.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return nil
	}, nil)
	defer u.Close()

	u.TriggerNow()
	<-started

	// pending entry was consumed before invocation, this starts a fresh one
	u.TriggerNow()
	close(release)

	waitFor(t, time.Second, func() bool { return fires.Load() == 2 })
}

// TestUpdaterClose tests that Close is idempotent and stops the loop.
func TestUpdaterClose(t *testing.T) {
	var fires atomic.Int32
	u := NewUpdater("test-close", func() error {
		fires.Add(1)
		return nil
	}, nil)

	u.Close()
	u.Close() // idempotent

	u.TriggerNow()
	time.Sleep(50 * time.Millisecond)
	if n := fires.Load(); n != 0 {
		t.Errorf("closed updater must not fire, got %d firings", n)
	}
}

// TestVerifyClosed tests the debug leak check over the live-instance registry.
func TestVerifyClosed(t *testing.T) {
	u := NewUpdater("test-leak", func() error { return nil }, nil)

	leaked := &collectingReporter{}
	ok := VerifyClosed(leaked)
	if ok || !leaked.contains("test-leak") {
		t.Error("VerifyClosed should report the open instance by name")
	}

	u.Close()

	closed := &collectingReporter{}
	VerifyClosed(closed)
	if closed.contains("test-leak") {
		t.Error("VerifyClosed should not report a closed instance")
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
