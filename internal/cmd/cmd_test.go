package cmd

import (
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/phasegate/internal/config"
	"github.com/spf13/viper"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"init", "status", "validate", "advance", "jump", "reset", "assess"}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestJumpRequiresTarget(t *testing.T) {
	if err := jumpCmd.Args(jumpCmd, []string{}); err == nil {
		t.Error("jump should require a target phase argument")
	}
	if err := jumpCmd.Args(jumpCmd, []string{"review"}); err != nil {
		t.Errorf("jump with one arg should be accepted: %v", err)
	}
}

func TestAssessRequiresDescription(t *testing.T) {
	if err := assessCmd.Args(assessCmd, []string{}); err == nil {
		t.Error("assess should require a description")
	}
}

func TestValidateReportsGateReadiness(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults()
	viper.Set("workspace", t.TempDir())
	viper.Set("state_dir", filepath.Join(t.TempDir(), "state"))

	// Before init the gate check degrades to a note, not an error.
	if err := runValidate(validateCmd, nil); err != nil {
		t.Fatalf("validate before init: %v", err)
	}

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("init: %v", err)
	}

	// With an active phase the gate readiness is part of the report.
	if err := runValidate(validateCmd, nil); err != nil {
		t.Fatalf("validate with active phase: %v", err)
	}
}
