// Package sched implements debounced, coalescing update schedulers that run a
// user callback on a dedicated background goroutine after a configurable,
// mergeable delay.
//
// Core Functionality:
//   - UpdateWindow: an immutable earliest/urgent timestamp pair with a merge
//     operation combining outstanding requests (max earliest, min urgent)
//   - Updater: single-target debounced scheduler
//   - MultiUpdater: keyed generalization, one goroutine servicing a
//     concurrent map of key -> UpdateWindow, always firing the soonest entry
//   - Restarter: periodic-restart variant with a fixed per-key cadence and
//     fall-behind detection when the consumer cannot keep up
//
// Implementation Approach:
//
//	Each scheduler owns exactly one background goroutine for its lifetime.
//	Trigger calls merge the new request into the outstanding window and poke
//	a buffered wake channel when the effective deadline moved earlier; the
//	goroutine re-reads the pending state after every wakeup, so spurious
//	wakes are harmless. The pending entry is removed before the callback is
//	invoked, which means a trigger arriving during callback execution starts
//	a fresh entry and callbacks for a given key are never concurrent with
//	each other.
//
//	Callback failures (returned errors as well as panics) are forwarded to
//	the configured report.IErrorReporter and never terminate the loop. The
//	loop ends only when the instance is closed or the process-wide shutdown
//	flag is set.
//
// Ownership:
//
//	Instances are expected to be long-lived and few; every instance must be
//	closed exactly once by its owner. VerifyClosed provides a debug leak
//	check over all instances that are still open.
package sched
