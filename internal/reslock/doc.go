// Package reslock provides advisory resource locks for the orchestration
// engine.
//
// Locks coordinate among work units this engine itself dispatches: when the
// conflict detector decides two groups must serialize on an overlapping
// resource scope, the scheduler acquires the scope's lock before launching
// each of them. Locks are in-process and advisory; they do not guard against
// arbitrary external writers.
//
// # Semantics
//
//   - A resource has at most one exclusive holder at a time.
//   - [Manager.Acquire] blocks until the resource is free or the timeout
//     elapses. A timeout is a denial (ErrLockTimeout), never a panic; the
//     caller routes it through the downgrade engine.
//   - Re-acquiring a resource already held by the same holder is a no-op
//     grant.
//   - [Manager.Release] is idempotent and a no-op if the caller is not the
//     holder.
//
// Timeouts resolve per resource class: a classifier maps each resource to a
// class, and classes carry configured timeouts. Resources without a class
// use the manager's default.
//
// # Basic Usage
//
//	mgr := reslock.NewManager(reslock.WithDefaultTimeout(30 * time.Second))
//
//	if err := mgr.Acquire(ctx, "config/**", "group:docs"); err != nil {
//	    // denial: route through the downgrade engine
//	}
//	defer mgr.Release("config/**", "group:docs")
//
// # Thread Safety
//
// All [Manager] methods are safe for concurrent use via an internal mutex
// and condition variable.
package reslock
