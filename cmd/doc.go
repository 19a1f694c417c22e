// Package cmd implements the command-line interface for upsync. It provides
// a small hierarchical command structure for demonstrating and benchmarking
// the library's concurrency primitives.
//
// The package is organized into several subpackages:
//
//   - bench: Micro-benchmarks for the one-to-many lock and the schedulers
//   - demo: A live scenario wiring updaters and a restarter together, with a
//     Prometheus metrics endpoint
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See upsync -help for a list of all commands.
package cmd
