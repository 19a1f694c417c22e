package sched

import (
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/upsync-dev/upsync/lib/report"
)

// --------------------------------------------------------------------------
// Live-instance registry (debug leak check)
// --------------------------------------------------------------------------

// Every updater and restarter registers itself here on creation and removes
// itself on Close. An instance becoming unreachable while still registered is
// a programming error in the owning application; VerifyClosed surfaces those
// as reported errors instead of silent leaks.

var (
	liveSeq atomic.Uint64
	live    = xsync.NewMapOf[uint64, string]()
)

func registerLive(name string) uint64 {
	id := liveSeq.Add(1)
	live.Store(id, name)
	return id
}

func unregisterLive(id uint64) {
	live.Delete(id)
}

// LiveCount returns the number of instances that have not been closed yet.
func LiveCount() int {
	return live.Size()
}

// VerifyClosed reports every instance that is still open to the given
// reporter and returns true only if none were found. It is meant to run
// right before process exit in debug builds and tests.
func VerifyClosed(reporter report.IErrorReporter) bool {
	if reporter == nil {
		reporter = report.Default
	}
	ok := true
	live.Range(func(id uint64, name string) bool {
		ok = false
		reporter.ReportError(fmt.Errorf("sched: instance %q was never closed", name))
		return true
	})
	return ok
}
