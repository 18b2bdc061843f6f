package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/phasegate/internal/conflict"
	"github.com/Iron-Ham/phasegate/internal/downgrade"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "phases[0].groups[1].id")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidCategories returns the list of valid impact radius categories
func ValidCategories() []string {
	return []string{"very-high", "high", "medium", "low"}
}

// Validate checks the Config for invalid values and returns all
// validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateLocks()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateDowngrade()...)
	errors = append(errors, c.validateConflictRules()...)
	errors = append(errors, c.validatePhases()...)

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateLocks() []ValidationError {
	var errors []ValidationError

	if c.Locks.DefaultTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "locks.default_timeout_seconds",
			Value:   c.Locks.DefaultTimeoutSeconds,
			Message: "must be positive",
		})
	}

	for class, secs := range c.Locks.ClassTimeoutSeconds {
		if secs <= 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("locks.class_timeout_seconds[%s]", class),
				Value:   secs,
				Message: "must be positive",
			})
		}
	}

	return errors
}

func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: "must be at least 1",
		})
	}

	if c.Retry.BackoffMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.backoff_ms",
			Value:   c.Retry.BackoffMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateDowngrade() []ValidationError {
	var errors []ValidationError

	if c.Downgrade.ConflictThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "downgrade.conflict_threshold",
			Value:   c.Downgrade.ConflictThreshold,
			Message: "must be at least 1",
		})
	}

	if c.Downgrade.ConflictDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "downgrade.conflict_delay_seconds",
			Value:   c.Downgrade.ConflictDelaySeconds,
			Message: "must be non-negative",
		})
	}

	seen := make(map[string]bool)
	for i, rule := range c.Downgrade.Rules {
		field := fmt.Sprintf("downgrade.rules[%d]", i)

		if rule.ID == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   rule.ID,
				Message: "must not be empty",
			})
		} else if seen[rule.ID] {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   rule.ID,
				Message: "duplicate rule id",
			})
		}
		seen[rule.ID] = true

		if _, err := downgrade.ParseSignalKind(rule.Trigger); err != nil {
			errors = append(errors, ValidationError{
				Field:   field + ".trigger",
				Value:   rule.Trigger,
				Message: "unknown downgrade trigger",
			})
		}

		if _, err := downgrade.ParseAction(rule.Action); err != nil {
			errors = append(errors, ValidationError{
				Field:   field + ".action",
				Value:   rule.Action,
				Message: "unknown downgrade action",
			})
		}

		if rule.MinCount < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".min_count",
				Value:   rule.MinCount,
				Message: "must be non-negative",
			})
		}

		if rule.Delta < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".delta",
				Value:   rule.Delta,
				Message: "must be non-negative",
			})
		}

		if rule.DelaySeconds < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".delay_seconds",
				Value:   rule.DelaySeconds,
				Message: "must be non-negative",
			})
		}
	}

	return errors
}

func (c *Config) validateConflictRules() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, rule := range c.ConflictRules {
		field := fmt.Sprintf("conflict_rules[%d]", i)

		if rule.ID == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   rule.ID,
				Message: "must not be empty",
			})
		} else if seen[rule.ID] {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   rule.ID,
				Message: "duplicate rule id",
			})
		}
		seen[rule.ID] = true

		if len(rule.Patterns) == 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".patterns",
				Value:   rule.Patterns,
				Message: "must declare at least one pattern",
			})
		}
		for j, p := range rule.Patterns {
			if _, err := glob.Compile(p, '/'); err != nil {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.patterns[%d]", field, j),
					Value:   p,
					Message: "invalid glob pattern",
				})
			}
		}

		if _, err := conflict.ParseSeverity(rule.Severity); err != nil {
			errors = append(errors, ValidationError{
				Field:   field + ".severity",
				Value:   rule.Severity,
				Message: "unknown conflict severity",
			})
		}

		if _, err := conflict.ParseAction(rule.Action); err != nil {
			errors = append(errors, ValidationError{
				Field:   field + ".action",
				Value:   rule.Action,
				Message: "unknown conflict action",
			})
		}
	}

	return errors
}

func (c *Config) validatePhases() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, ph := range c.Phases {
		field := fmt.Sprintf("phases[%d]", i)

		if ph.Name == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Value:   ph.Name,
				Message: "must not be empty",
			})
		} else if seen[ph.Name] {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Value:   ph.Name,
				Message: "duplicate phase name",
			})
		}
		seen[ph.Name] = true

		if ph.MaxWorkers < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".max_workers",
				Value:   ph.MaxWorkers,
				Message: "must be non-negative",
			})
		}

		for j, cat := range ph.Lane {
			if cat == "" {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.lane[%d]", field, j),
					Value:   cat,
					Message: "must not be empty",
				})
			}
		}

		for j, d := range ph.Deliverables {
			dfield := fmt.Sprintf("%s.deliverables[%d]", field, j)
			if d.Path == "" {
				errors = append(errors, ValidationError{
					Field:   dfield + ".path",
					Value:   d.Path,
					Message: "must not be empty",
				})
			} else if _, err := glob.Compile(d.Path, '/'); err != nil {
				errors = append(errors, ValidationError{
					Field:   dfield + ".path",
					Value:   d.Path,
					Message: "invalid glob pattern",
				})
			}
		}

		errors = append(errors, validateGroups(field, ph.Groups)...)
		errors = append(errors, validateAssessment(field, ph.Assessment)...)
	}

	return errors
}

func validateGroups(field string, groups []GroupConfig) []ValidationError {
	var errors []ValidationError

	ids := make(map[string]bool, len(groups))
	edges := make(map[string][]string, len(groups))
	for i, g := range groups {
		gfield := fmt.Sprintf("%s.groups[%d]", field, i)

		if g.ID == "" {
			errors = append(errors, ValidationError{
				Field:   gfield + ".id",
				Value:   g.ID,
				Message: "must not be empty",
			})
		} else if ids[g.ID] {
			errors = append(errors, ValidationError{
				Field:   gfield + ".id",
				Value:   g.ID,
				Message: "duplicate group id",
			})
		}
		ids[g.ID] = true

		if g.MaxWorkers < 0 {
			errors = append(errors, ValidationError{
				Field:   gfield + ".max_workers",
				Value:   g.MaxWorkers,
				Message: "must be non-negative",
			})
		}

		for j, p := range g.Patterns {
			if _, err := glob.Compile(p, '/'); err != nil {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.patterns[%d]", gfield, j),
					Value:   p,
					Message: "invalid glob pattern",
				})
			}
		}
	}

	for i, g := range groups {
		gfield := fmt.Sprintf("%s.groups[%d]", field, i)
		for j, dep := range g.DependsOn {
			dfield := fmt.Sprintf("%s.depends_on[%d].group", gfield, j)
			if !ids[dep.Group] {
				errors = append(errors, ValidationError{
					Field:   dfield,
					Value:   dep.Group,
					Message: "references an undefined group",
				})
				continue
			}
			if dep.Group == g.ID {
				errors = append(errors, ValidationError{
					Field:   dfield,
					Value:   dep.Group,
					Message: "group depends on itself",
				})
				continue
			}
			edges[g.ID] = append(edges[g.ID], dep.Group)
		}
	}

	if cycle := findDependencyCycle(edges); len(cycle) > 0 {
		errors = append(errors, ValidationError{
			Field:   field + ".groups",
			Value:   strings.Join(cycle, " -> "),
			Message: "dependency cycle detected",
		})
	}

	return errors
}

func validateAssessment(field string, a AssessmentConfig) []ValidationError {
	var errors []ValidationError

	for i, p := range a.Patterns {
		pfield := fmt.Sprintf("%s.assessment.patterns[%d]", field, i)
		if p.Pattern == "" {
			errors = append(errors, ValidationError{
				Field:   pfield + ".pattern",
				Value:   p.Pattern,
				Message: "must not be empty",
			})
		}
		for name, score := range map[string]int{
			"risk":       p.Risk,
			"complexity": p.Complexity,
			"scope":      p.Scope,
		} {
			if score < 0 || score > 10 {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s.%s", pfield, name),
					Value:   score,
					Message: "must be between 0 and 10",
				})
			}
		}
	}

	for category, workers := range a.Workers {
		if !slices.Contains(ValidCategories(), category) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.assessment.workers[%s]", field, category),
				Value:   category,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCategories(), ", ")),
			})
		}
		if workers < 1 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.assessment.workers[%s]", field, category),
				Value:   workers,
				Message: "must be at least 1",
			})
		}
	}

	return errors
}

// findDependencyCycle runs a DFS over the dependency edges and returns
// the first cycle found, or nil.
func findDependencyCycle(edges map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(edges))
	var stack []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range edges[node] {
			switch color[next] {
			case gray:
				start := slices.Index(stack, next)
				cycle = append(slices.Clone(stack[start:]), next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
		return false
	}

	nodes := make([]string, 0, len(edges))
	for node := range edges {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if color[node] == white && visit(node) {
			return cycle
		}
	}
	return nil
}
