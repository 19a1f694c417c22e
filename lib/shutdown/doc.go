// Package shutdown implements the process-wide shutdown flag shared by all
// background loops in this module.
//
// The flag is a latch: once Trigger is called it stays set for the rest of the
// process lifetime. Background loops poll it via Triggered or select on the
// channel returned by Done, and exit silently once it is set. Shutdown is a
// normal termination signal, never an error.
//
// The package additionally maintains a blocker group. Callbacks that must not
// be cut off by process exit (see sched.Options.Critical) hold a blocker for
// the duration of their execution; the process entry point can then use
// WaitBlockers to give in-flight callbacks a bounded grace period.
//
// Thread Safety:
//
//	All functions in this package are safe for concurrent use.
package shutdown
