// Package downgrade reacts to degradation signals raised during a phase
// run by lowering how aggressively the run parallelizes.
//
// # Signals
//
// The scheduler, lock manager and conflict watcher feed signals into the
// engine: lock timeouts, repeated conflicts on a resource, resource
// pressure, task failures, critical path failures and transient I/O
// timeouts. The engine matches signals against a configured rule table
// and answers with a decision: do nothing, reduce the worker ceiling,
// force serial execution (optionally with a delay between retries), or
// abort the run with rollback.
//
// # Guarantees
//
// Decisions are monotonic within a phase run: the engine never raises
// concurrency back up, no matter what later signals say. A critical path
// failure always aborts and preempts every other rule. Three conflicts on
// the same resource within one phase run force serialized execution with
// a delay even when no configured rule says so. When two decisions
// disagree in the same cycle, Resolve picks the lower-concurrency one.
package downgrade
