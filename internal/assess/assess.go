// Package assess scores a task description into a concurrency recommendation.
//
// The assessor is a pure function of (description, table): the first risk
// pattern matching the description supplies a (risk, complexity, scope)
// triple, the triple is combined into an impact radius, and the radius is
// bucketed into a category that maps to a recommended worker count.
// Identical inputs always produce identical results, and a missing or empty
// table falls back to built-in defaults rather than erroring.
package assess

import "strings"

// Radius weights for the composite impact score.
const (
	weightRisk       = 5
	weightComplexity = 3
	weightScope      = 2
)

// Category thresholds on the 0-100 radius scale.
const (
	veryHighThreshold = 70
	highThreshold     = 50
	mediumThreshold   = 30
)

// Category represents an impact radius bucket.
type Category string

const (
	// CategoryVeryHigh covers radius >= 70.
	CategoryVeryHigh Category = "very-high"
	// CategoryHigh covers radius 50-69.
	CategoryHigh Category = "high"
	// CategoryMedium covers radius 30-49.
	CategoryMedium Category = "medium"
	// CategoryLow covers radius < 30.
	CategoryLow Category = "low"
)

// RiskPattern maps a description pattern to a scoring triple.
// Patterns are matched as case-insensitive substrings, in table order;
// the first match wins.
type RiskPattern struct {
	Pattern    string // Substring matched against the task description
	Risk       int    // 0-10
	Complexity int    // 0-10
	Scope      int    // 0-10
}

// Table is an ordered risk-pattern table plus the category-to-worker-count
// mapping for one phase. A zero Table is usable: every lookup falls back to
// the built-in defaults.
type Table struct {
	Patterns []RiskPattern
	// Workers maps a category to the recommended worker count.
	// Missing categories fall back to DefaultWorkers.
	Workers map[Category]int
}

// DefaultWorkers is the fallback category-to-worker mapping used when a
// phase table does not override a category.
var DefaultWorkers = map[Category]int{
	CategoryVeryHigh: 2,
	CategoryHigh:     6,
	CategoryMedium:   4,
	CategoryLow:      8,
}

// defaultTriple is used when no pattern matches the description.
var defaultTriple = RiskPattern{Pattern: "", Risk: 2, Complexity: 2, Scope: 2}

// Assessment is the derived concurrency recommendation for one task
// description. It is computed fresh per call and never persisted.
type Assessment struct {
	Risk           int
	Complexity     int
	Scope          int
	Radius         int      // risk*5 + complexity*3 + scope*2, range 0-100
	Category       Category // radius bucket
	Workers        int      // recommended worker count for the category
	MatchedPattern string   // the winning pattern ("" for the default triple)
}

// Assess scores a task description against the given table.
// It is deterministic and has no side effects.
func Assess(description string, table Table) Assessment {
	triple := matchPattern(description, table.Patterns)

	radius := triple.Risk*weightRisk + triple.Complexity*weightComplexity + triple.Scope*weightScope
	category := Categorize(radius)

	return Assessment{
		Risk:           triple.Risk,
		Complexity:     triple.Complexity,
		Scope:          triple.Scope,
		Radius:         radius,
		Category:       category,
		Workers:        workersFor(category, table.Workers),
		MatchedPattern: triple.Pattern,
	}
}

// Categorize buckets a radius into a Category.
func Categorize(radius int) Category {
	switch {
	case radius >= veryHighThreshold:
		return CategoryVeryHigh
	case radius >= highThreshold:
		return CategoryHigh
	case radius >= mediumThreshold:
		return CategoryMedium
	default:
		return CategoryLow
	}
}

// matchPattern returns the first pattern whose text appears in the
// description (case-insensitive), or the default low-risk triple.
func matchPattern(description string, patterns []RiskPattern) RiskPattern {
	desc := strings.ToLower(description)
	for _, p := range patterns {
		if p.Pattern == "" {
			continue
		}
		if strings.Contains(desc, strings.ToLower(p.Pattern)) {
			return p
		}
	}
	return defaultTriple
}

// workersFor resolves the worker count for a category, preferring the
// phase override and falling back to DefaultWorkers.
func workersFor(category Category, overrides map[Category]int) int {
	if overrides != nil {
		if n, ok := overrides[category]; ok && n > 0 {
			return n
		}
	}
	return DefaultWorkers[category]
}
