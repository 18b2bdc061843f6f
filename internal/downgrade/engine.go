package downgrade

import (
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/phasegate/internal/event"
)

// Default engine values.
const (
	defaultConflictThreshold = 3
	defaultConflictDelay     = 5 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

// WithRules sets the configured rule table.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithConflictThreshold sets how many conflicts on one resource within a
// phase run force serialized execution.
func WithConflictThreshold(n int) Option {
	return func(e *Engine) { e.conflictThreshold = n }
}

// WithConflictDelay sets the inter-retry delay applied when the conflict
// threshold escalation fires.
func WithConflictDelay(d time.Duration) Option {
	return func(e *Engine) { e.conflictDelay = d }
}

// WithBus publishes a DowngradeAppliedEvent for every non-noop decision.
func WithBus(bus *event.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// Engine evaluates degradation signals for one phase run at a time.
// It is safe for concurrent use.
type Engine struct {
	mu                sync.Mutex
	rules             []Rule
	conflictThreshold int
	conflictDelay     time.Duration
	bus               *event.Bus

	// Per-phase-run state, reset by BeginPhase.
	ceiling   int
	serial    bool
	aborted   bool
	conflicts map[string]int
}

// NewEngine creates an Engine with the given options.
// Unset options use defaults.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		conflictThreshold: defaultConflictThreshold,
		conflictDelay:     defaultConflictDelay,
		conflicts:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BeginPhase resets the engine for a new phase run starting at the given
// worker ceiling. Conflict counters and the monotonic floor start fresh.
func (e *Engine) BeginPhase(workers int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ceiling = workers
	e.serial = false
	e.aborted = false
	e.conflicts = make(map[string]int)
}

// Ceiling returns the current worker ceiling after applied downgrades.
// Serialized runs report 1; aborted runs report 0.
func (e *Engine) Ceiling() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.aborted:
		return 0
	case e.serial:
		return 1
	default:
		return e.ceiling
	}
}

// Serial reports whether the run has been forced serial.
func (e *Engine) Serial() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serial
}

// Aborted reports whether the run has been aborted.
func (e *Engine) Aborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

// Evaluate applies one signal and returns the resulting decision. The
// decision is already applied to the engine's state: callers act on it,
// they do not decide whether to.
func (e *Engine) Evaluate(sig Signal) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.aborted {
		return Decision{Action: ActionAbort, Reason: "run already aborted", Notify: false}
	}

	// Critical path failure preempts every rule. Terminal.
	if sig.Kind == SignalCriticalPathFailure {
		return e.applyLocked(Decision{
			Action: ActionAbort,
			Reason: "critical path failure: a must-complete group failed",
			Notify: true,
		})
	}

	// Built-in escalation: repeated conflicts on one resource.
	if sig.Kind == SignalRepeatedConflict && sig.Resource != "" {
		e.conflicts[sig.Resource] += max(sig.Count, 1)
		if e.conflicts[sig.Resource] >= e.conflictThreshold && !e.serial {
			return e.applyLocked(Decision{
				Action: ActionSerialize,
				Delay:  e.conflictDelay,
				Reason: fmt.Sprintf("%d conflicts on %s this phase run (threshold: %d)", e.conflicts[sig.Resource], sig.Resource, e.conflictThreshold),
				Notify: true,
			})
		}
	}

	for _, rule := range e.rules {
		if !rule.matches(sig) {
			continue
		}
		return e.applyLocked(Decision{
			Action: rule.Action,
			Delta:  rule.Delta,
			Delay:  rule.Delay,
			Reason: fmt.Sprintf("rule %s matched signal %s", rule.ID, sig.Kind),
			Notify: rule.Notify,
			Rule:   rule.ID,
		})
	}

	return Decision{Action: ActionNone, Reason: "no rule matched"}
}

// applyLocked folds a decision into the run state, enforcing monotonicity:
// a decision that would leave more concurrency standing than the current
// state is demoted to a noop. Callers hold e.mu.
func (e *Engine) applyLocked(d Decision) Decision {
	before := e.ceilingLocked()

	switch d.Action {
	case ActionAbort:
		e.aborted = true

	case ActionSerialize:
		if e.serial {
			return Decision{Action: ActionNone, Reason: "already serialized"}
		}
		e.serial = true

	case ActionReduce:
		if e.serial {
			return Decision{Action: ActionNone, Reason: "already serialized below the requested ceiling"}
		}
		target := e.ceiling - d.Delta
		if target < 1 {
			target = 1
		}
		if target >= e.ceiling {
			return Decision{Action: ActionNone, Reason: "ceiling already at or below the requested level"}
		}
		e.ceiling = target

	default:
		return d
	}

	e.publishLocked(d, before)
	return d
}

func (e *Engine) ceilingLocked() int {
	switch {
	case e.aborted:
		return 0
	case e.serial:
		return 1
	default:
		return e.ceiling
	}
}

func (e *Engine) publishLocked(d Decision, before int) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(event.NewDowngradeAppliedEvent(
		d.Rule, d.Action.String(), before, e.ceilingLocked(), d.Reason, d.Notify,
	))
}

// Resolve picks between two decisions reached in the same cycle: the one
// leaving less concurrency standing wins. On equal rank the larger
// reduction wins.
func Resolve(a, b Decision) Decision {
	if a.rank() != b.rank() {
		if a.rank() > b.rank() {
			return a
		}
		return b
	}
	if b.Delta > a.Delta {
		return b
	}
	return a
}

// ConflictCount returns how many conflicts have been recorded against a
// resource in the current phase run.
func (e *Engine) ConflictCount(resource string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conflicts[resource]
}
