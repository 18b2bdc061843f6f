// Package phase is the gate state machine driving a unit of work through
// its seven ordered stages.
//
// # Pointer
//
// The current phase is a single pointer persisted as a token file under
// the state directory. An absent file means uninitialized. Completing
// the terminal phase clears the pointer entirely so a freshly started
// unit of work always begins at the first phase; a stale pointer leaking
// into a new run is the failure mode this package exists to prevent.
//
// # Transitions
//
// Advance moves n to n+1 and only after the scheduler reported success
// for the current phase and every configured deliverable predicate holds
// against the workspace. Jump skips ahead only when every intermediate
// phase's completion marker verifies; the refusal names the first phase
// that does not. Every refusal carries the precise unmet condition.
//
// # Lanes
//
// Each phase whitelists the operation categories legal while it is
// active. Out-of-lane operations are refused, naming the lane.
package phase
