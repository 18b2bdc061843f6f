package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete engine configuration: the phase workflow, the
// conflict and downgrade rule tables, lock timeouts and ambient settings.
type Config struct {
	// StateDir is where the phase pointer, completion markers and logs
	// live. Empty means ".phasegate" under the workspace.
	StateDir string `mapstructure:"state_dir"`

	// Workspace is the root deliverable predicates and the mid-run
	// watcher evaluate against. Empty means the current directory.
	Workspace string `mapstructure:"workspace"`

	Logging   LoggingConfig   `mapstructure:"logging"`
	Locks     LockConfig      `mapstructure:"locks"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Downgrade DowngradeConfig `mapstructure:"downgrade"`

	// Phases declares the workflow in gate order. Empty uses the
	// built-in seven-stage default.
	Phases []PhaseConfig `mapstructure:"phases"`

	// ConflictRules are screened against every pair of groups that
	// would run simultaneously.
	ConflictRules []ConflictRuleConfig `mapstructure:"conflict_rules"`
}

// LoggingConfig controls the engine log.
type LoggingConfig struct {
	// Level is the log level
	// Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
}

// LockConfig controls resource lock acquisition timeouts.
type LockConfig struct {
	// DefaultTimeoutSeconds applies when no resource class matches
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds"`

	// ClassTimeoutSeconds maps a resource-class prefix to its timeout
	ClassTimeoutSeconds map[string]int `mapstructure:"class_timeout_seconds"`
}

// RetryConfig bounds transient-failure retries in the scheduler.
type RetryConfig struct {
	// MaxAttempts is the total number of execution attempts per group
	MaxAttempts int `mapstructure:"max_attempts"`

	// BackoffMs is the base delay between attempts, scaled linearly
	BackoffMs int `mapstructure:"backoff_ms"`
}

// DowngradeConfig holds the downgrade rule table and the built-in
// repeated-conflict escalation knobs.
type DowngradeConfig struct {
	// ConflictThreshold is how many conflicts on one resource within a
	// phase run force serialized execution
	ConflictThreshold int `mapstructure:"conflict_threshold"`

	// ConflictDelaySeconds is the retry delay the escalation applies
	ConflictDelaySeconds int `mapstructure:"conflict_delay_seconds"`

	Rules []DowngradeRuleConfig `mapstructure:"rules"`
}

// DowngradeRuleConfig is one configured downgrade rule.
type DowngradeRuleConfig struct {
	ID string `mapstructure:"id"`

	// Trigger is the signal kind this rule reacts to
	// Options: "lock_timeout", "repeated_conflict", "resource_pressure",
	// "task_failure", "critical_path_failure", "transient_io_timeout"
	Trigger string `mapstructure:"trigger"`

	// MinCount is the minimum signal count before the rule fires
	MinCount int `mapstructure:"min_count"`

	// Pressure restricts resource_pressure rules to one resource kind
	Pressure string `mapstructure:"pressure"`

	// Level restricts resource_pressure rules to a pressure level
	Level string `mapstructure:"level"`

	// Action is what the rule does when it fires
	// Options: "none", "reduce", "serialize", "abort"
	Action string `mapstructure:"action"`

	// Delta is how many workers a reduce action removes
	Delta int `mapstructure:"delta"`

	// DelaySeconds is an inter-task delay applied with the action
	DelaySeconds int `mapstructure:"delay_seconds"`

	// Notify surfaces the downgrade to the operator
	Notify bool `mapstructure:"notify"`
}

// ConflictRuleConfig is one configured conflict rule.
type ConflictRuleConfig struct {
	ID string `mapstructure:"id"`

	// Patterns are the resource globs the rule covers
	Patterns []string `mapstructure:"patterns"`

	// Severity of a matched conflict
	// Options: "minor", "major", "error", "fatal"
	Severity string `mapstructure:"severity"`

	// Action taken on a match
	// Options: "serialize", "queue", "serial-phase", "abort"
	Action string `mapstructure:"action"`

	// Priority orders rule evaluation, lower first
	Priority int `mapstructure:"priority"`
}

// PhaseConfig declares one phase of the workflow.
type PhaseConfig struct {
	Name string `mapstructure:"name"`

	// Lane is the whitelist of operation categories legal in this phase
	Lane []string `mapstructure:"lane"`

	// MaxWorkers is the phase concurrency ceiling, zero means no cap
	MaxWorkers int `mapstructure:"max_workers"`

	Deliverables []DeliverableConfig `mapstructure:"deliverables"`
	Groups       []GroupConfig       `mapstructure:"groups"`
	Assessment   AssessmentConfig    `mapstructure:"assessment"`
}

// DeliverableConfig is one completion predicate: a path or glob that
// must hold under the workspace before the phase can be left.
type DeliverableConfig struct {
	Name        string `mapstructure:"name"`
	Path        string `mapstructure:"path"`
	Description string `mapstructure:"description"`
}

// GroupConfig declares one parallel group within a phase.
type GroupConfig struct {
	ID          string `mapstructure:"id"`
	Description string `mapstructure:"description"`

	// MaxWorkers caps this group's workers, zero means unbounded
	MaxWorkers int `mapstructure:"max_workers"`

	// Patterns are the workspace paths the group declares it will touch
	Patterns []string `mapstructure:"patterns"`

	DependsOn []DependencyConfig `mapstructure:"depends_on"`
}

// DependencyConfig is one dependency edge between groups.
type DependencyConfig struct {
	Group string `mapstructure:"group"`

	// BeforeStart requires the predecessor to fully complete before the
	// dependent group starts
	BeforeStart bool `mapstructure:"before_start"`
}

// AssessmentConfig is the per-phase risk table for the impact assessor.
type AssessmentConfig struct {
	Patterns []RiskPatternConfig `mapstructure:"patterns"`

	// Workers maps a radius category to the recommended worker count
	Workers map[string]int `mapstructure:"workers"`
}

// RiskPatternConfig scores task descriptions containing Pattern.
type RiskPatternConfig struct {
	Pattern    string `mapstructure:"pattern"`
	Risk       int    `mapstructure:"risk"`
	Complexity int    `mapstructure:"complexity"`
	Scope      int    `mapstructure:"scope"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		StateDir:  "",
		Workspace: "",
		Logging: LoggingConfig{
			Level: "info",
		},
		Locks: LockConfig{
			DefaultTimeoutSeconds: 30,
			ClassTimeoutSeconds:   map[string]int{},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BackoffMs:   500,
		},
		Downgrade: DowngradeConfig{
			ConflictThreshold:    3,
			ConflictDelaySeconds: 5,
			Rules:                []DowngradeRuleConfig{},
		},
		Phases:        []PhaseConfig{},
		ConflictRules: []ConflictRuleConfig{},
	}
}

// DefaultTimeout returns the default lock timeout as a duration.
func (c *LockConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

// Backoff returns the retry backoff as a duration.
func (c *RetryConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMs) * time.Millisecond
}

// ConflictDelay returns the repeated-conflict delay as a duration.
func (c *DowngradeConfig) ConflictDelay() time.Duration {
	return time.Duration(c.ConflictDelaySeconds) * time.Second
}

// ResolveStateDir returns the state directory, defaulting to
// ".phasegate" under the workspace. Supports ~ expansion.
func (c *Config) ResolveStateDir() string {
	if c.StateDir == "" {
		return filepath.Join(c.ResolveWorkspace(), ".phasegate")
	}
	return expandPath(c.StateDir)
}

// ResolveWorkspace returns the workspace root, defaulting to the
// current directory. Supports ~ expansion.
func (c *Config) ResolveWorkspace() string {
	if c.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		return wd
	}
	return expandPath(c.Workspace)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
	}
	return path
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("state_dir", defaults.StateDir)
	viper.SetDefault("workspace", defaults.Workspace)

	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("locks.default_timeout_seconds", defaults.Locks.DefaultTimeoutSeconds)
	viper.SetDefault("locks.class_timeout_seconds", defaults.Locks.ClassTimeoutSeconds)

	viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	viper.SetDefault("retry.backoff_ms", defaults.Retry.BackoffMs)

	viper.SetDefault("downgrade.conflict_threshold", defaults.Downgrade.ConflictThreshold)
	viper.SetDefault("downgrade.conflict_delay_seconds", defaults.Downgrade.ConflictDelaySeconds)
}

// Load reads the configuration from viper into a Config struct and
// validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "phasegate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phasegate"
	}
	return filepath.Join(home, ".config", "phasegate")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
