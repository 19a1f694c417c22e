package sched

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestMultiKeyIsolation tests that two keys with disjoint deadlines both fire
// at their own times, in increasing deadline order.
func TestMultiKeyIsolation(t *testing.T) {
	type firing struct {
		key string
		at  time.Time
	}
	fired := make(chan firing, 8)

	m := NewMultiUpdater[string]("test-isolation", func(key string) error {
		fired <- firing{key: key, at: time.Now()}
		return nil
	}, nil)
	defer m.Close()

	start := time.Now()
	m.TriggerUrgent("a", 50*time.Millisecond)
	m.TriggerUrgent("b", 150*time.Millisecond)

	var first, second firing
	select {
	case first = <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("first key never fired")
	}
	select {
	case second = <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("second key never fired")
	}

	if first.key != "a" || second.key != "b" {
		t.Errorf("expected firing order a, b; got %s, %s", first.key, second.key)
	}

	// b must fire at its own deadline, not delayed past it by a's firing
	if d := second.at.Sub(start); d < 145*time.Millisecond {
		t.Errorf("b fired after %v, expected ~150ms", d)
	}
}

// TestMultiPerKeyCoalescing tests that rapid triggers on one key collapse
// into a single firing while an unrelated key is unaffected.
func TestMultiPerKeyCoalescing(t *testing.T) {
	var aFires, bFires atomic.Int32

	m := NewMultiUpdater[string]("test-coalesce", func(key string) error {
		switch key {
		case "a":
			aFires.Add(1)
		case "b":
			bFires.Add(1)
		}
		return nil
	}, nil)
	defer m.Close()

	m.TriggerUrgent("b", 30*time.Millisecond)
	for i := 0; i < 5; i++ {
		m.TriggerPostpone("a", 60*time.Millisecond)
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool { return aFires.Load() == 1 && bFires.Load() == 1 })

	time.Sleep(100 * time.Millisecond)
	if n := aFires.Load(); n != 1 {
		t.Errorf("coalesced triggers on one key should fire once, got %d", n)
	}
}

// TestMultiConcurrentTriggers tests that triggers from many goroutines on
// distinct keys are all serviced.
func TestMultiConcurrentTriggers(t *testing.T) {
	const keys = 64

	var fires atomic.Int32
	m := NewMultiUpdater[string]("test-concurrent", func(key string) error {
		fires.Add(1)
		return nil
	}, nil)
	defer m.Close()

	var wg sync.WaitGroup
	wg.Add(keys)
	for i := 0; i < keys; i++ {
		go func(i int) {
			defer wg.Done()
			m.TriggerNow(fmt.Sprintf("key-%d", i))
		}(i)
	}
	wg.Wait()

	waitFor(t, 5*time.Second, func() bool { return fires.Load() == keys })

	if n := m.PendingCount(); n != 0 {
		t.Errorf("all entries should be consumed, %d still pending", n)
	}
}

// TestMultiTriggerDuringExecution tests that a trigger for the key currently
// being serviced starts a fresh entry.
func TestMultiTriggerDuringExecution(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var fires atomic.Int32

	m := NewMultiUpdater[string]("test-multi-reentry", func(key string) error {
		if fires.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return nil
	}, nil)
	defer m.Close()

	m.TriggerNow("k")
	<-started

	m.TriggerNow("k")
	close(release)

	waitFor(t, time.Second, func() bool { return fires.Load() == 2 })
}
