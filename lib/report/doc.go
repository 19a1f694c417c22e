// Package report implements the centralized error-reporting collaborator used
// by every background loop in this module.
//
// Callback failures must never kill the goroutine that owns an updater or
// restarter. Instead, each failure is handed to an IErrorReporter exactly
// once, and the loop continues. The default reporter writes to the module's
// logger and counts reported errors in a Prometheus-compatible metric.
//
// The package also owns the logging setup. Logging goes through the
// dragonboat logger facade: each package obtains a named logger via
// logger.GetLogger and the factory installed by InitLoggers controls the
// output format and level for all of them.
package report
