// Package lock implements a dual-mode lock that admits either one exclusive
// holder ("One" mode) or any number of concurrent holders ("Many" mode), but
// never both at the same time.
//
// Core Functionality:
//   - One mode: at most one goroutine inside the critical section, with an
//     optional priority admission policy that bounds the wait under sustained
//     Many-mode traffic
//   - Many mode: unlimited concurrent holders, throughput not serialized
//   - Scoped guards with an explicit state machine and idempotent release
//   - A scoped ObjectLocker wrapper for plain sync.Locker values
//
// Implementation Approach:
//
//	Admission is a lock-free retry loop over two atomic counters (doingOne,
//	doingMany) plus two broadcast signals that fire whenever a counter drops
//	to zero. A contender registers itself in its own counter, checks the
//	opposing counter, and either proceeds or withdraws and blocks on the
//	opposing "clear" signal before retrying. One-mode holders additionally
//	serialize on an internal mutex, acquired only after admission succeeds,
//	so Many-mode admission never touches that mutex.
//
//	With the priority flag, a One-mode contender keeps its registration while
//	the running Many cohort drains. New Many arrivals then fail their own
//	admission check and queue up, which bounds the One-mode wait to one drain
//	cycle. Without the flag, the contender withdraws before waiting, which
//	lets Many traffic overtake it indefinitely. That asymmetry is deliberate
//	and part of the contract.
//
// Thread Safety:
//
//	The lock itself is safe for concurrent use from any number of goroutines.
//	An individual guard is owned by a single goroutine and must not be shared.
package lock
