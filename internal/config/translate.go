package config

import (
	"time"

	"github.com/Iron-Ham/phasegate/internal/assess"
	"github.com/Iron-Ham/phasegate/internal/conflict"
	"github.com/Iron-Ham/phasegate/internal/downgrade"
	"github.com/Iron-Ham/phasegate/internal/phase"
	"github.com/Iron-Ham/phasegate/internal/reslock"
	"github.com/Iron-Ham/phasegate/internal/schedule"
)

// PhaseList builds the typed phase sequence from the configured
// workflow. An empty phase list falls back to the built-in defaults.
// Ordinals follow declaration order.
func (c *Config) PhaseList() []phase.Phase {
	if len(c.Phases) == 0 {
		return phase.DefaultPhases()
	}

	phases := make([]phase.Phase, 0, len(c.Phases))
	for i, pc := range c.Phases {
		deliverables := make([]phase.Deliverable, 0, len(pc.Deliverables))
		for _, d := range pc.Deliverables {
			deliverables = append(deliverables, phase.Deliverable{
				Name:        d.Name,
				Path:        d.Path,
				Description: d.Description,
			})
		}
		phases = append(phases, phase.Phase{
			Name:         pc.Name,
			Ordinal:      i + 1,
			Lane:         append([]string(nil), pc.Lane...),
			Deliverables: deliverables,
			MaxWorkers:   pc.MaxWorkers,
		})
	}
	return phases
}

// GroupsFor returns the typed parallel groups declared for the named
// phase.
func (c *Config) GroupsFor(phaseName string) []schedule.Group {
	for _, pc := range c.Phases {
		if pc.Name != phaseName {
			continue
		}
		groups := make([]schedule.Group, 0, len(pc.Groups))
		for _, gc := range pc.Groups {
			deps := make([]schedule.Dependency, 0, len(gc.DependsOn))
			for _, dc := range gc.DependsOn {
				deps = append(deps, schedule.Dependency{
					Group:       dc.Group,
					BeforeStart: dc.BeforeStart,
				})
			}
			groups = append(groups, schedule.Group{
				ID:           gc.ID,
				Description:  gc.Description,
				Patterns:     append([]string(nil), gc.Patterns...),
				Dependencies: deps,
				MaxWorkers:   gc.MaxWorkers,
			})
		}
		return groups
	}
	return nil
}

// AssessTable returns the risk table for the named phase. A phase
// without assessment config yields a zero table, which the assessor
// treats as built-in defaults.
func (c *Config) AssessTable(phaseName string) assess.Table {
	for _, pc := range c.Phases {
		if pc.Name != phaseName {
			continue
		}
		table := assess.Table{}
		for _, rp := range pc.Assessment.Patterns {
			table.Patterns = append(table.Patterns, assess.RiskPattern{
				Pattern:    rp.Pattern,
				Risk:       rp.Risk,
				Complexity: rp.Complexity,
				Scope:      rp.Scope,
			})
		}
		if len(pc.Assessment.Workers) > 0 {
			table.Workers = make(map[assess.Category]int, len(pc.Assessment.Workers))
			for category, n := range pc.Assessment.Workers {
				table.Workers[assess.Category(category)] = n
			}
		}
		return table
	}
	return assess.Table{}
}

// ConflictRuleSet builds the typed conflict rules. The config must have
// been validated first: compile failures here are returned as-is.
func (c *Config) ConflictRuleSet() ([]conflict.Rule, error) {
	rules := make([]conflict.Rule, 0, len(c.ConflictRules))
	for _, rc := range c.ConflictRules {
		severity, err := conflict.ParseSeverity(rc.Severity)
		if err != nil {
			return nil, err
		}
		action, err := conflict.ParseAction(rc.Action)
		if err != nil {
			return nil, err
		}
		rule, err := conflict.NewRule(rc.ID, rc.Patterns, severity, action, rc.Priority)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// DowngradeRuleSet builds the typed downgrade rules.
func (c *Config) DowngradeRuleSet() ([]downgrade.Rule, error) {
	rules := make([]downgrade.Rule, 0, len(c.Downgrade.Rules))
	for _, rc := range c.Downgrade.Rules {
		trigger, err := downgrade.ParseSignalKind(rc.Trigger)
		if err != nil {
			return nil, err
		}
		action, err := downgrade.ParseAction(rc.Action)
		if err != nil {
			return nil, err
		}
		rules = append(rules, downgrade.Rule{
			ID:       rc.ID,
			Trigger:  trigger,
			MinCount: rc.MinCount,
			Pressure: rc.Pressure,
			Level:    rc.Level,
			Action:   action,
			Delta:    rc.Delta,
			Delay:    time.Duration(rc.DelaySeconds) * time.Second,
			Notify:   rc.Notify,
		})
	}
	return rules, nil
}

// LockOptions builds the reslock options from the lock config. Configured
// resource classes are matched against resources as path prefixes.
func (c *Config) LockOptions() []reslock.Option {
	opts := []reslock.Option{
		reslock.WithDefaultTimeout(c.Locks.DefaultTimeout()),
	}
	if len(c.Locks.ClassTimeoutSeconds) == 0 {
		return opts
	}
	classes := make([]string, 0, len(c.Locks.ClassTimeoutSeconds))
	for class, secs := range c.Locks.ClassTimeoutSeconds {
		classes = append(classes, class)
		opts = append(opts, reslock.WithClassTimeout(class, time.Duration(secs)*time.Second))
	}
	opts = append(opts, reslock.WithClassifier(reslock.PrefixClassifier(classes...)))
	return opts
}
