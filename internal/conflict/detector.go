package conflict

import (
	"sort"

	"github.com/Iron-Ham/phasegate/internal/event"
)

// GroupSpec is the detector's view of a schedulable group: its ID and the
// resource patterns it declared.
type GroupSpec struct {
	ID       string
	Patterns []string
}

// Match records one rule firing against one pair of groups.
type Match struct {
	Rule     string
	Severity Severity
	Action   Action
	GroupA   string
	GroupB   string
	Scope    []string
}

// LockRequest asks the scheduler to acquire a lock over Scope before any
// of Groups runs, so the overlapping groups serialize on it.
type LockRequest struct {
	RuleID string
	Scope  []string
	Groups []string
}

// Plan is the screening verdict for one wave.
type Plan struct {
	// Abort abandons the phase run before launch.
	Abort bool
	// WaveSerial runs every group in the wave one at a time.
	WaveSerial bool
	// Serialized holds the IDs of groups demoted to serialized execution.
	Serialized map[string]bool
	// Locks are the scoped lock acquisitions the scheduler must perform.
	Locks []LockRequest
	// Matches lists every rule that fired, highest concern first.
	Matches []Match
}

// Serial reports whether group id was demoted to serialized execution.
func (p Plan) Serial(id string) bool {
	return p.Serialized[id]
}

// Detector evaluates conflict rules against the groups of one wave.
type Detector struct {
	rules []Rule
	bus   *event.Bus
}

// Option configures a Detector.
type Option func(*Detector)

// WithBus publishes a ConflictDetectedEvent for every match.
func WithBus(bus *event.Bus) Option {
	return func(d *Detector) { d.bus = bus }
}

// NewDetector builds a detector over a static rule set. Rules are sorted
// by priority so ties resolve deterministically.
func NewDetector(rules []Rule, opts ...Option) *Detector {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Severity > sorted[j].Severity
	})
	return &Detector{rules: sorted, bus: applyBus(opts)}
}

func applyBus(opts []Option) *event.Bus {
	d := Detector{}
	for _, opt := range opts {
		opt(&d)
	}
	return d.bus
}

// Screen evaluates every pair of groups against the rule set and returns
// the launch plan for the wave. For each conflicting pair only the winning
// rule (lowest priority number, then highest severity) contributes an
// action; all matches are reported.
func (d *Detector) Screen(groups []GroupSpec) Plan {
	plan := Plan{Serialized: make(map[string]bool)}

	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			match, ok := d.matchPair(groups[i], groups[j])
			if !ok {
				continue
			}
			plan.Matches = append(plan.Matches, match)
			d.publish(match)
			d.apply(&plan, match)
		}
	}

	return plan
}

// matchPair finds the winning rule for a pair of groups. The rule slice is
// already priority-ordered, so the first rule whose patterns cover both
// groups on an overlapping scope wins. A rule covering the groups through
// disjoint patterns does not fire: the pair cannot touch a shared path.
func (d *Detector) matchPair(a, b GroupSpec) (Match, bool) {
	for _, rule := range d.rules {
		scopeA := rule.coveredScope(a)
		if len(scopeA) == 0 {
			continue
		}
		scopeB := rule.coveredScope(b)
		if len(scopeB) == 0 {
			continue
		}
		if !scopesIntersect(scopeA, scopeB) {
			continue
		}
		return Match{
			Rule:     rule.ID,
			Severity: rule.Severity,
			Action:   rule.Action,
			GroupA:   a.ID,
			GroupB:   b.ID,
			Scope:    mergeScopes(scopeA, scopeB),
		}, true
	}
	return Match{}, false
}

func (d *Detector) apply(plan *Plan, m Match) {
	if m.Severity == SeverityFatal || m.Action == ActionSerialPhase {
		plan.WaveSerial = true
	}
	if m.Action == ActionAbort {
		plan.Abort = true
	}

	switch m.Severity {
	case SeverityMinor:
		// Logged via the event bus; no launch change.
	default:
		plan.Serialized[m.GroupA] = true
		plan.Serialized[m.GroupB] = true
		plan.Locks = append(plan.Locks, LockRequest{
			RuleID: m.Rule,
			Scope:  m.Scope,
			Groups: []string{m.GroupA, m.GroupB},
		})
	}
}

func (d *Detector) publish(m Match) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(event.NewConflictDetectedEvent(
		m.Rule, m.Severity.String(),
		[]string{m.GroupA, m.GroupB}, m.Scope,
	))
}

// scopesIntersect reports whether any pattern in a can touch the same path
// as any pattern in b.
func scopesIntersect(a, b []string) bool {
	for _, sa := range a {
		for _, sb := range b {
			if PatternsOverlap(sa, sb) {
				return true
			}
		}
	}
	return false
}

func mergeScopes(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
