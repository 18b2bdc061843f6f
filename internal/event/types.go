// Package event defines event types for decoupling components of the engine.
// These events let the phase gate, scheduler, lock manager and downgrade
// engine report decisions without requiring direct dependencies on whoever
// consumes them (CLI output, audit logging, tests).
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "phase.advanced", "lock.timeout")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Phase Gate Events
// -----------------------------------------------------------------------------

// PhaseAdvancedEvent is emitted when the state machine moves to a new phase.
type PhaseAdvancedEvent struct {
	baseEvent
	From string // Previous phase ("" when initializing)
	To   string // New current phase
}

// NewPhaseAdvancedEvent creates a PhaseAdvancedEvent.
func NewPhaseAdvancedEvent(from, to string) PhaseAdvancedEvent {
	return PhaseAdvancedEvent{
		baseEvent: newBaseEvent("phase.advanced"),
		From:      from,
		To:        to,
	}
}

// PhaseRefusedEvent is emitted when an advance, jump or lane check is refused.
type PhaseRefusedEvent struct {
	baseEvent
	Phase     string // Active phase at refusal time
	Operation string // What was attempted ("advance", "jump", or an operation category)
	Condition string // The precise unmet condition
}

// NewPhaseRefusedEvent creates a PhaseRefusedEvent.
func NewPhaseRefusedEvent(phase, operation, condition string) PhaseRefusedEvent {
	return PhaseRefusedEvent{
		baseEvent: newBaseEvent("phase.refused"),
		Phase:     phase,
		Operation: operation,
		Condition: condition,
	}
}

// PhaseClearedEvent is emitted when the terminal phase completes and the
// phase pointer is cleared back to uninitialized.
type PhaseClearedEvent struct {
	baseEvent
	Terminal string // The terminal phase that completed
}

// NewPhaseClearedEvent creates a PhaseClearedEvent.
func NewPhaseClearedEvent(terminal string) PhaseClearedEvent {
	return PhaseClearedEvent{
		baseEvent: newBaseEvent("phase.cleared"),
		Terminal:  terminal,
	}
}

// -----------------------------------------------------------------------------
// Scheduler Events
// -----------------------------------------------------------------------------

// WaveLaunchedEvent is emitted when the scheduler launches a wave of groups.
type WaveLaunchedEvent struct {
	baseEvent
	Phase   string   // Phase being run
	Wave    int      // Wave index within this run
	Groups  []string // Group IDs launched concurrently
	Serial  bool     // Whether the wave was forced serial
	Workers int      // Effective worker ceiling for the wave
}

// NewWaveLaunchedEvent creates a WaveLaunchedEvent.
func NewWaveLaunchedEvent(phase string, wave int, groups []string, serial bool, workers int) WaveLaunchedEvent {
	return WaveLaunchedEvent{
		baseEvent: newBaseEvent("wave.launched"),
		Phase:     phase,
		Wave:      wave,
		Groups:    groups,
		Serial:    serial,
		Workers:   workers,
	}
}

// GroupCompletedEvent is emitted when a group's work unit finishes.
type GroupCompletedEvent struct {
	baseEvent
	Phase   string
	GroupID string
	Result  string   // "success", "failure", or "conflict"
	Touched []string // Resources the worker reported touching
}

// NewGroupCompletedEvent creates a GroupCompletedEvent.
func NewGroupCompletedEvent(phase, groupID, result string, touched []string) GroupCompletedEvent {
	return GroupCompletedEvent{
		baseEvent: newBaseEvent("group.completed"),
		Phase:     phase,
		GroupID:   groupID,
		Result:    result,
		Touched:   touched,
	}
}

// RunAbortedEvent is emitted when a phase run is aborted.
type RunAbortedEvent struct {
	baseEvent
	Phase  string
	Reason string
}

// NewRunAbortedEvent creates a RunAbortedEvent.
func NewRunAbortedEvent(phase, reason string) RunAbortedEvent {
	return RunAbortedEvent{
		baseEvent: newBaseEvent("run.aborted"),
		Phase:     phase,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Conflict Events
// -----------------------------------------------------------------------------

// ConflictDetectedEvent is emitted when the detector matches a rule against
// a pair of groups, or when the mid-run watcher observes an undeclared write.
type ConflictDetectedEvent struct {
	baseEvent
	RuleID   string   // Matched rule ("" for mid-run watcher reports)
	Severity string   // Rule severity at detection time
	Groups   []string // Groups involved
	Scope    []string // Overlapping resource patterns or the written path
}

// NewConflictDetectedEvent creates a ConflictDetectedEvent.
func NewConflictDetectedEvent(ruleID, severity string, groups, scope []string) ConflictDetectedEvent {
	return ConflictDetectedEvent{
		baseEvent: newBaseEvent("conflict.detected"),
		RuleID:    ruleID,
		Severity:  severity,
		Groups:    groups,
		Scope:     scope,
	}
}

// -----------------------------------------------------------------------------
// Lock Events
// -----------------------------------------------------------------------------

// LockAcquiredEvent is emitted when a resource lock is granted.
type LockAcquiredEvent struct {
	baseEvent
	Resource string
	Holder   string
	Waited   time.Duration
}

// NewLockAcquiredEvent creates a LockAcquiredEvent.
func NewLockAcquiredEvent(resource, holder string, waited time.Duration) LockAcquiredEvent {
	return LockAcquiredEvent{
		baseEvent: newBaseEvent("lock.acquired"),
		Resource:  resource,
		Holder:    holder,
		Waited:    waited,
	}
}

// LockTimeoutEvent is emitted when a lock acquisition times out.
// Lock timeouts are downgrade signals, not raw errors.
type LockTimeoutEvent struct {
	baseEvent
	Resource string
	Holder   string // The waiter that was denied
	HeldBy   string // The holder at timeout time
}

// NewLockTimeoutEvent creates a LockTimeoutEvent.
func NewLockTimeoutEvent(resource, holder, heldBy string) LockTimeoutEvent {
	return LockTimeoutEvent{
		baseEvent: newBaseEvent("lock.timeout"),
		Resource:  resource,
		Holder:    holder,
		HeldBy:    heldBy,
	}
}

// -----------------------------------------------------------------------------
// Downgrade Events
// -----------------------------------------------------------------------------

// DowngradeAppliedEvent is emitted when the downgrade engine emits a
// non-noop decision.
type DowngradeAppliedEvent struct {
	baseEvent
	RuleID string // Matched rule ("" for built-in escalations)
	Action string // "reduce", "serialize", or "abort"
	From   int    // Concurrency before the decision
	To     int    // Concurrency after the decision
	Reason string
	Notify bool
}

// NewDowngradeAppliedEvent creates a DowngradeAppliedEvent.
func NewDowngradeAppliedEvent(ruleID, action string, from, to int, reason string, notify bool) DowngradeAppliedEvent {
	return DowngradeAppliedEvent{
		baseEvent: newBaseEvent("downgrade.applied"),
		RuleID:    ruleID,
		Action:    action,
		From:      from,
		To:        to,
		Reason:    reason,
		Notify:    notify,
	}
}
