package downgrade

import (
	"fmt"
	"strings"
	"time"
)

// SignalKind identifies the degradation signal being reported.
type SignalKind string

const (
	// SignalLockTimeout is raised when a group's lock acquisition timed out.
	SignalLockTimeout SignalKind = "lock_timeout"

	// SignalRepeatedConflict is raised when a resource keeps conflicting.
	SignalRepeatedConflict SignalKind = "repeated_conflict"

	// SignalResourcePressure is raised when a watched resource (memory,
	// file handles, workers) crosses a pressure level.
	SignalResourcePressure SignalKind = "resource_pressure"

	// SignalTaskFailure is raised when a group's task fails.
	SignalTaskFailure SignalKind = "task_failure"

	// SignalCriticalPathFailure is raised when a group that later groups
	// must-complete-before-start on fails. Always terminal.
	SignalCriticalPathFailure SignalKind = "critical_path_failure"

	// SignalTransientTimeout is raised when transient I/O timeouts recur.
	SignalTransientTimeout SignalKind = "transient_io_timeout"
)

// String returns the configuration name of the signal kind.
func (k SignalKind) String() string {
	return string(k)
}

// ParseSignalKind converts a configuration string to a SignalKind.
func ParseSignalKind(s string) (SignalKind, error) {
	switch SignalKind(strings.ToLower(s)) {
	case SignalLockTimeout, SignalRepeatedConflict, SignalResourcePressure,
		SignalTaskFailure, SignalCriticalPathFailure, SignalTransientTimeout:
		return SignalKind(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown downgrade signal %q", s)
	}
}

// Signal is one degradation report fed into the engine.
type Signal struct {
	Kind SignalKind

	// Resource names the contended resource for lock and conflict signals.
	Resource string

	// Count carries the occurrence count for counted signals
	// (task_failure, transient_io_timeout). Zero means one.
	Count int

	// Pressure carries the pressure kind and level for
	// resource_pressure signals.
	Pressure string
	Level    string
}

// Action is the kind of decision the engine hands back.
type Action string

const (
	// ActionNone leaves the run unchanged.
	ActionNone Action = "none"

	// ActionReduce lowers the worker ceiling by Decision.Delta.
	ActionReduce Action = "reduce"

	// ActionSerialize forces the remaining groups to run one at a time.
	ActionSerialize Action = "serialize"

	// ActionAbort abandons the phase run and rolls back.
	ActionAbort Action = "abort"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// ParseAction converts a configuration string to an Action.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(s)) {
	case ActionNone, ActionReduce, ActionSerialize, ActionAbort:
		return Action(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown downgrade action %q", s)
	}
}

// Decision is the result of evaluating a signal against the rule table
// and the engine's built-in escalations.
type Decision struct {
	// Action is the recommended downgrade action.
	Action Action

	// Delta is how far to lower the worker ceiling. Zero unless Action
	// is ActionReduce.
	Delta int

	// Delay is the pause to insert between serialized retries. Zero
	// unless the rule or escalation asked for one.
	Delay time.Duration

	// Reason is a human-readable explanation of the decision.
	Reason string

	// Notify marks decisions the operator should be told about.
	Notify bool

	// Rule is the ID of the matched rule, or "" for built-in escalations.
	Rule string
}

// rank orders decisions by how much concurrency they leave standing.
// Higher rank means lower concurrency.
func (d Decision) rank() int {
	switch d.Action {
	case ActionAbort:
		return 3
	case ActionSerialize:
		return 2
	case ActionReduce:
		return 1
	default:
		return 0
	}
}

// Rule is one configured downgrade rule: when Trigger fires (at least
// MinCount times for counted signals), take Action.
type Rule struct {
	ID       string
	Trigger  SignalKind
	MinCount int    // minimum Signal.Count, 0 matches any
	Pressure string // required Signal.Pressure, "" matches any
	Level    string // required Signal.Level, "" matches any
	Action   Action
	Delta    int           // ceiling reduction for ActionReduce
	Delay    time.Duration // inter-retry delay for ActionSerialize
	Notify   bool
}

func (r Rule) matches(sig Signal) bool {
	if r.Trigger != sig.Kind {
		return false
	}
	if r.MinCount > 0 && max(sig.Count, 1) < r.MinCount {
		return false
	}
	if r.Pressure != "" && r.Pressure != sig.Pressure {
		return false
	}
	if r.Level != "" && r.Level != sig.Level {
		return false
	}
	return true
}
