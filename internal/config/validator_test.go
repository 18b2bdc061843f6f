package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Phases = []PhaseConfig{
		{
			Name: "implementation",
			Lane: []string{"code-edit", "doc-edit"},
			Deliverables: []DeliverableConfig{
				{Name: "source", Path: "src/**", Description: "implementation files"},
			},
			Groups: []GroupConfig{
				{ID: "api", Patterns: []string{"api/**"}},
				{
					ID:       "docs",
					Patterns: []string{"docs/**"},
					DependsOn: []DependencyConfig{
						{Group: "api", BeforeStart: true},
					},
				},
			},
			Assessment: AssessmentConfig{
				Patterns: []RiskPatternConfig{
					{Pattern: "schema migration", Risk: 7, Complexity: 6, Scope: 5},
				},
				Workers: map[string]int{"high": 6},
			},
		},
	}
	cfg.ConflictRules = []ConflictRuleConfig{
		{ID: "config-files", Patterns: []string{"config/**"}, Severity: "fatal", Action: "serial-phase", Priority: 1},
	}
	cfg.Downgrade.Rules = []DowngradeRuleConfig{
		{ID: "lock-pressure", Trigger: "lock_timeout", Action: "reduce", Delta: 2},
	}
	return cfg
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if errs := validConfig().Validate(); len(errs) > 0 {
		t.Errorf("expected no errors, got: %v", ValidationErrors(errs))
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
		{
			name:      "zero lock timeout",
			mutate:    func(c *Config) { c.Locks.DefaultTimeoutSeconds = 0 },
			wantField: "locks.default_timeout_seconds",
		},
		{
			name:      "negative class timeout",
			mutate:    func(c *Config) { c.Locks.ClassTimeoutSeconds = map[string]int{"db": -1} },
			wantField: "locks.class_timeout_seconds[db]",
		},
		{
			name:      "zero retry attempts",
			mutate:    func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantField: "retry.max_attempts",
		},
		{
			name:      "zero conflict threshold",
			mutate:    func(c *Config) { c.Downgrade.ConflictThreshold = 0 },
			wantField: "downgrade.conflict_threshold",
		},
		{
			name:      "unknown downgrade trigger",
			mutate:    func(c *Config) { c.Downgrade.Rules[0].Trigger = "disk_full" },
			wantField: "downgrade.rules[0].trigger",
		},
		{
			name:      "unknown downgrade action",
			mutate:    func(c *Config) { c.Downgrade.Rules[0].Action = "pause" },
			wantField: "downgrade.rules[0].action",
		},
		{
			name:      "empty conflict rule id",
			mutate:    func(c *Config) { c.ConflictRules[0].ID = "" },
			wantField: "conflict_rules[0].id",
		},
		{
			name:      "invalid conflict glob",
			mutate:    func(c *Config) { c.ConflictRules[0].Patterns = []string{"config/["} },
			wantField: "conflict_rules[0].patterns[0]",
		},
		{
			name:      "unknown conflict severity",
			mutate:    func(c *Config) { c.ConflictRules[0].Severity = "catastrophic" },
			wantField: "conflict_rules[0].severity",
		},
		{
			name:      "unknown conflict action",
			mutate:    func(c *Config) { c.ConflictRules[0].Action = "halt" },
			wantField: "conflict_rules[0].action",
		},
		{
			name:      "empty phase name",
			mutate:    func(c *Config) { c.Phases[0].Name = "" },
			wantField: "phases[0].name",
		},
		{
			name:      "empty deliverable path",
			mutate:    func(c *Config) { c.Phases[0].Deliverables[0].Path = "" },
			wantField: "phases[0].deliverables[0].path",
		},
		{
			name:      "duplicate group id",
			mutate:    func(c *Config) { c.Phases[0].Groups[1].ID = "api" },
			wantField: "phases[0].groups[1].id",
		},
		{
			name:      "undefined dependency target",
			mutate:    func(c *Config) { c.Phases[0].Groups[1].DependsOn[0].Group = "ghost" },
			wantField: "phases[0].groups[1].depends_on[0].group",
		},
		{
			name:      "self dependency",
			mutate:    func(c *Config) { c.Phases[0].Groups[1].DependsOn[0].Group = "docs" },
			wantField: "phases[0].groups[1].depends_on[0].group",
		},
		{
			name: "dependency cycle",
			mutate: func(c *Config) {
				c.Phases[0].Groups[0].DependsOn = []DependencyConfig{
					{Group: "docs", BeforeStart: true},
				}
			},
			wantField: "phases[0].groups",
		},
		{
			name:      "risk score out of range",
			mutate:    func(c *Config) { c.Phases[0].Assessment.Patterns[0].Risk = 11 },
			wantField: "phases[0].assessment.patterns[0].risk",
		},
		{
			name:      "unknown worker category",
			mutate:    func(c *Config) { c.Phases[0].Assessment.Workers = map[string]int{"extreme": 2} },
			wantField: "phases[0].assessment.workers[extreme]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected a validation error, got none")
			}
			for _, err := range errs {
				if err.Field == tt.wantField {
					return
				}
			}
			t.Errorf("no error on field %q, got: %v", tt.wantField, ValidationErrors(errs))
		})
	}
}

func TestValidateDuplicatePhaseName(t *testing.T) {
	cfg := validConfig()
	cfg.Phases = append(cfg.Phases, PhaseConfig{Name: "implementation"})

	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if err.Field == "phases[1].name" && err.Message == "duplicate phase name" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected duplicate phase name error, got: %v", ValidationErrors(errs))
	}
}

func TestValidationErrorFormatting(t *testing.T) {
	single := ValidationErrors{
		{Field: "retry.max_attempts", Value: 0, Message: "must be at least 1"},
	}
	if got := single.Error(); got != "retry.max_attempts: must be at least 1 (got: 0)" {
		t.Errorf("single error = %q", got)
	}

	multi := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	got := multi.Error()
	if !strings.HasPrefix(got, "2 validation errors:") {
		t.Errorf("multi error should lead with the count, got %q", got)
	}
	if !strings.Contains(got, "1. a: bad (got: 1)") || !strings.Contains(got, "2. b: worse (got: 2)") {
		t.Errorf("multi error should number entries, got %q", got)
	}

	if ValidationErrors(nil).Error() != "" {
		t.Error("empty ValidationErrors should format as empty string")
	}
}

func TestFindDependencyCycle(t *testing.T) {
	edges := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	cycle := findDependencyCycle(edges)
	if len(cycle) == 0 {
		t.Fatal("expected a cycle")
	}
	if cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("cycle should close on itself, got %v", cycle)
	}

	acyclic := map[string][]string{
		"a": {"b"},
		"b": {"c"},
	}
	if cycle := findDependencyCycle(acyclic); cycle != nil {
		t.Errorf("expected no cycle, got %v", cycle)
	}
}
