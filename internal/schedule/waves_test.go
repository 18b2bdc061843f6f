package schedule

import (
	"testing"

	errs "github.com/Iron-Ham/phasegate/internal/errors"
)

func TestLayerWaves_NoDependencies_SingleWave(t *testing.T) {
	waves, err := layerWaves([]Group{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	if err != nil {
		t.Fatalf("layerWaves: %v", err)
	}
	if len(waves) != 1 {
		t.Fatalf("expected 1 wave, got %d", len(waves))
	}
	if len(waves[0]) != 3 {
		t.Errorf("expected 3 groups in wave 0, got %d", len(waves[0]))
	}
}

func TestLayerWaves_BlockingEdgeSplitsWaves(t *testing.T) {
	waves, err := layerWaves([]Group{
		{ID: "migrate"},
		{ID: "api", Dependencies: []Dependency{{Group: "migrate", BeforeStart: true}}},
		{ID: "docs"},
	})
	if err != nil {
		t.Fatalf("layerWaves: %v", err)
	}
	if len(waves) != 2 {
		t.Fatalf("expected 2 waves, got %d", len(waves))
	}
	if got := waveIDs(waves[0]); got[0] != "docs" || got[1] != "migrate" {
		t.Errorf("wave 0 = %v, want [docs migrate]", got)
	}
	if got := waveIDs(waves[1]); len(got) != 1 || got[0] != "api" {
		t.Errorf("wave 1 = %v, want [api]", got)
	}
}

func TestLayerWaves_ChainsProduceDeepWaves(t *testing.T) {
	waves, err := layerWaves([]Group{
		{ID: "a"},
		{ID: "b", Dependencies: []Dependency{{Group: "a", BeforeStart: true}}},
		{ID: "c", Dependencies: []Dependency{{Group: "b", BeforeStart: true}}},
	})
	if err != nil {
		t.Fatalf("layerWaves: %v", err)
	}
	if len(waves) != 3 {
		t.Fatalf("expected 3 waves, got %d", len(waves))
	}
}

func TestLayerWaves_SoftEdgeStaysInWave(t *testing.T) {
	waves, err := layerWaves([]Group{
		{ID: "zeta"},
		{ID: "alpha", Dependencies: []Dependency{{Group: "zeta", BeforeStart: false}}},
	})
	if err != nil {
		t.Fatalf("layerWaves: %v", err)
	}
	if len(waves) != 1 {
		t.Fatalf("soft edges must not split waves, got %d waves", len(waves))
	}
	// Soft predecessor launches first despite ID order.
	got := waveIDs(waves[0])
	if got[0] != "zeta" || got[1] != "alpha" {
		t.Errorf("wave order = %v, want [zeta alpha]", got)
	}
}

func TestLayerWaves_UndefinedDependency(t *testing.T) {
	_, err := layerWaves([]Group{
		{ID: "a", Dependencies: []Dependency{{Group: "ghost", BeforeStart: true}}},
	})
	if err == nil {
		t.Fatal("expected error for undefined dependency target")
	}
	var verr *errs.ValidationError
	if !errs.As(err, &verr) {
		t.Errorf("expected ValidationError, got %T", err)
	}
}

func TestLayerWaves_SelfDependency(t *testing.T) {
	_, err := layerWaves([]Group{
		{ID: "a", Dependencies: []Dependency{{Group: "a", BeforeStart: true}}},
	})
	if err == nil {
		t.Fatal("expected error for self dependency")
	}
}

func TestLayerWaves_DuplicateID(t *testing.T) {
	_, err := layerWaves([]Group{{ID: "a"}, {ID: "a"}})
	if err == nil {
		t.Fatal("expected error for duplicate group ID")
	}
}

func TestLayerWaves_CycleDetected(t *testing.T) {
	_, err := layerWaves([]Group{
		{ID: "a", Dependencies: []Dependency{{Group: "b", BeforeStart: true}}},
		{ID: "b", Dependencies: []Dependency{{Group: "c", BeforeStart: true}}},
		{ID: "c", Dependencies: []Dependency{{Group: "a", BeforeStart: true}}},
	})
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errs.Is(err, errs.ErrDependencyCycle) {
		t.Errorf("error should wrap ErrDependencyCycle, got %v", err)
	}
}

func TestDependents(t *testing.T) {
	deps := dependents([]Group{
		{ID: "a"},
		{ID: "b", Dependencies: []Dependency{{Group: "a", BeforeStart: true}}},
		{ID: "c", Dependencies: []Dependency{{Group: "a", BeforeStart: false}}},
	})
	if got := deps["a"]; len(got) != 1 || got[0] != "b" {
		t.Errorf("dependents(a) = %v, want [b]; soft edges do not count", got)
	}
}

func waveIDs(wave []Group) []string {
	ids := make([]string, len(wave))
	for i, g := range wave {
		ids[i] = g.ID
	}
	return ids
}
