// Package schedule runs the parallel groups of one phase.
//
// # Waves
//
// Groups are layered into waves by their must-complete-before-start
// dependency edges: a group joins the first wave after every predecessor
// it blocks on has fully finished. Before each wave launches, the
// conflict detector screens the wave's groups; fatal conflicts abandon
// the parallel launch and the wave retries serially, lesser conflicts
// demote just the overlapping groups to serialized execution behind a
// scoped lock.
//
// # Concurrency
//
// Parallel groups launch through an errgroup bounded by a resizable
// semaphore. The semaphore's limit is the effective worker ceiling:
// the minimum of the group ceiling, the phase ceiling and the assessed
// recommendation, lowered further whenever the downgrade engine applies
// a decision mid-run.
//
// # Failure policy
//
// One failed group without dependents lets its siblings finish. A failed
// group that later groups must-complete on is a critical path failure
// and aborts the run. Two independent failures in one phase run also
// abort. Aborting cancels groups that have not started and signals
// running ones through their context; completed results are kept for
// diagnostics.
package schedule
