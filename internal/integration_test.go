// Package internal contains integration tests that verify the packages
// work together correctly. These tests ensure the engine composition
// pattern and event bus communication work as expected.
package internal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Iron-Ham/phasegate/internal/config"
	"github.com/Iron-Ham/phasegate/internal/engine"
	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/Iron-Ham/phasegate/internal/event"
	"github.com/Iron-Ham/phasegate/internal/logging"
	"github.com/Iron-Ham/phasegate/internal/schedule"
)

func integrationConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Workspace = t.TempDir()
	cfg.StateDir = filepath.Join(t.TempDir(), "state")
	cfg.Phases = []config.PhaseConfig{
		{
			Name: "implementation",
			Lane: []string{"code-edit", "doc-edit"},
			Deliverables: []config.DeliverableConfig{
				{Name: "source", Path: "main.go"},
			},
			Groups: []config.GroupConfig{
				{ID: "core", Patterns: []string{"core/**"}},
				{ID: "api", Patterns: []string{"api/**"}},
				{
					ID:       "docs",
					Patterns: []string{"docs/**"},
					DependsOn: []config.DependencyConfig{
						{Group: "api", BeforeStart: true},
					},
				},
			},
		},
		{
			Name:   "review",
			Lane:   []string{"review"},
			Groups: []config.GroupConfig{{ID: "audit", Patterns: []string{"**"}}},
		},
	}
	if verrs := cfg.Validate(); len(verrs) > 0 {
		t.Fatalf("config invalid: %v", config.ValidationErrors(verrs))
	}
	return cfg
}

// TestEngineEventFlow runs a full phase through the assembled engine and
// verifies the event bus carries the lifecycle events end to end.
func TestEngineEventFlow(t *testing.T) {
	cfg := integrationConfig(t)
	bus := event.NewBus()

	var mu sync.Mutex
	seen := make(map[string]int)
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		seen[e.EventType()]++
		mu.Unlock()
	})

	worker := schedule.WorkerFunc(func(ctx context.Context, task schedule.Task) (schedule.Report, error) {
		return schedule.Report{Touched: []string{task.Group + "/out.go"}}, nil
	})

	eng, err := engine.New(cfg,
		engine.WithWorker(worker),
		engine.WithBus(bus),
		engine.WithLogger(logging.NopLogger()),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	if _, err := eng.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	outcome, err := eng.Run(context.Background(), "wire the api handlers")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("run failed: %+v", outcome.Results)
	}
	// docs depends on api before-start, so the run takes two waves.
	if outcome.Waves != 2 {
		t.Errorf("waves = %d, want 2", outcome.Waves)
	}

	mu.Lock()
	defer mu.Unlock()
	if seen["wave.launched"] != 2 {
		t.Errorf("wave.launched events = %d, want 2", seen["wave.launched"])
	}
	if seen["group.completed"] != 3 {
		t.Errorf("group.completed events = %d, want 3", seen["group.completed"])
	}
}

// TestEngineGateLifecycle drives the gate through advance refusal, a
// satisfied advance, and the terminal-phase pointer clear.
func TestEngineGateLifecycle(t *testing.T) {
	cfg := integrationConfig(t)

	worker := schedule.WorkerFunc(func(ctx context.Context, task schedule.Task) (schedule.Report, error) {
		return schedule.Report{}, nil
	})

	eng, err := engine.New(cfg,
		engine.WithWorker(worker),
		engine.WithBus(event.NewBus()),
		engine.WithLogger(logging.NopLogger()),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	if _, err := eng.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// No run yet: the gate refuses.
	if _, err := eng.Advance(); !errs.Is(err, errs.ErrRunNotComplete) {
		t.Fatalf("Advance before run = %v, want ErrRunNotComplete", err)
	}

	if _, err := eng.Run(context.Background(), "implement the module"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Run is complete but the deliverable does not hold yet.
	if _, err := eng.Advance(); !errs.Is(err, errs.ErrGateNotSatisfied) {
		t.Fatalf("Advance without deliverable = %v, want ErrGateNotSatisfied", err)
	}

	if err := os.WriteFile(filepath.Join(cfg.ResolveWorkspace(), "main.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := eng.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if p.Name != "review" {
		t.Fatalf("advanced to %q, want review", p.Name)
	}

	// Complete the terminal phase: the pointer clears.
	if _, err := eng.Run(context.Background(), "audit the changes"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	p, err = eng.Advance()
	if err != nil {
		t.Fatalf("Advance terminal: %v", err)
	}
	if p.Name != "" {
		t.Errorf("terminal advance should clear the pointer, got %q", p.Name)
	}
	if _, err := eng.Current(); !errs.Is(err, errs.ErrPhaseUninitialized) {
		t.Errorf("Current after terminal = %v, want ErrPhaseUninitialized", err)
	}
}
