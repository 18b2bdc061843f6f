package conflict

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Severity classifies how serious an overlap between two groups is.
type Severity int

const (
	// SeverityMinor overlaps are logged; execution proceeds unchanged.
	SeverityMinor Severity = iota
	// SeverityMajor overlaps serialize the overlapping groups behind a lock.
	SeverityMajor
	// SeverityError overlaps serialize the overlapping groups behind a lock.
	SeverityError
	// SeverityFatal overlaps abandon the parallel launch for the whole wave.
	SeverityFatal
)

// String returns the configuration name of a severity.
func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a configuration string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "minor":
		return SeverityMinor, nil
	case "major":
		return SeverityMajor, nil
	case "error":
		return SeverityError, nil
	case "fatal":
		return SeverityFatal, nil
	default:
		return 0, fmt.Errorf("unknown conflict severity %q", s)
	}
}

// Action is what the scheduler must do when a rule matches.
type Action int

const (
	// ActionSerialize locks the overlapping scope and serializes the
	// overlapping groups.
	ActionSerialize Action = iota
	// ActionQueue defers the later group until the earlier one finishes,
	// without holding a lock across the wave.
	ActionQueue
	// ActionSerialPhase forces the entire wave to run serially.
	ActionSerialPhase
	// ActionAbort abandons the phase run.
	ActionAbort
)

// String returns the configuration name of an action.
func (a Action) String() string {
	switch a {
	case ActionSerialize:
		return "serialize"
	case ActionQueue:
		return "queue"
	case ActionSerialPhase:
		return "serial-phase"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// ParseAction converts a configuration string to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "serialize":
		return ActionSerialize, nil
	case "queue":
		return ActionQueue, nil
	case "serial-phase":
		return ActionSerialPhase, nil
	case "abort":
		return ActionAbort, nil
	default:
		return 0, fmt.Errorf("unknown conflict action %q", s)
	}
}

// Rule is a static conflict rule: a pattern set with a severity, an action
// and a priority. Rules are loaded once at startup and evaluated per pair
// of simultaneously requested groups.
type Rule struct {
	ID       string
	Patterns []string
	Severity Severity
	Action   Action
	Priority int // lower number wins ties between matching rules

	compiled []glob.Glob
}

// NewRule compiles a conflict rule. It fails fast on malformed globs so a
// bad pattern is a load-time error, not a use-time one.
func NewRule(id string, patterns []string, severity Severity, action Action, priority int) (Rule, error) {
	if id == "" {
		return Rule{}, fmt.Errorf("conflict rule must have an ID")
	}
	if len(patterns) == 0 {
		return Rule{}, fmt.Errorf("conflict rule %q has no patterns", id)
	}

	compiled := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return Rule{}, fmt.Errorf("conflict rule %q pattern %q: %w", id, p, err)
		}
		compiled[i] = g
	}

	return Rule{
		ID:       id,
		Patterns: patterns,
		Severity: severity,
		Action:   action,
		Priority: priority,
		compiled: compiled,
	}, nil
}

// coveredScope returns the rule patterns that cover at least one declared
// resource pattern of the group.
func (r Rule) coveredScope(group GroupSpec) []string {
	var scope []string
	for i, rp := range r.Patterns {
		for _, gp := range group.Patterns {
			if patternCovers(rp, r.compiled[i], gp) {
				scope = append(scope, rp)
				break
			}
		}
	}
	return scope
}

// globMeta are the characters that make a pattern non-literal.
const globMeta = "*?[{"

// isLiteral reports whether a pattern contains no glob metacharacters.
func isLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, globMeta)
}

// staticPrefix returns the literal path segment of a pattern up to its
// first metacharacter, trimmed to a trailing separator.
func staticPrefix(pattern string) string {
	i := strings.IndexAny(pattern, globMeta)
	if i < 0 {
		return pattern
	}
	return pattern[:i]
}

// patternCovers reports whether a rule pattern covers a group's declared
// resource pattern. Literal paths are matched through the compiled glob;
// two glob patterns are considered overlapping when their static prefixes
// nest, which is conservative in the serialize direction.
func patternCovers(rulePattern string, ruleGlob glob.Glob, groupPattern string) bool {
	if rulePattern == groupPattern {
		return true
	}
	if isLiteral(groupPattern) {
		return ruleGlob.Match(groupPattern)
	}
	rp, gp := staticPrefix(rulePattern), staticPrefix(groupPattern)
	return strings.HasPrefix(rp, gp) || strings.HasPrefix(gp, rp)
}

// PatternsOverlap reports whether two declared resource patterns can touch
// the same path. Used for lock-scope bookkeeping between waves.
func PatternsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	switch {
	case isLiteral(a) && isLiteral(b):
		return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
	case isLiteral(a):
		g, err := glob.Compile(b)
		return err == nil && g.Match(a)
	case isLiteral(b):
		g, err := glob.Compile(a)
		return err == nil && g.Match(b)
	default:
		pa, pb := staticPrefix(a), staticPrefix(b)
		return strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa)
	}
}
