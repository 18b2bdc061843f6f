package phase

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_LoadAbsentPointer(t *testing.T) {
	s := newTestStore(t)

	name, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok || name != "" {
		t.Errorf("absent pointer should read as uninitialized, got (%q, %v)", name, ok)
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save("implementation"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	name, ok, err := s.Load()
	if err != nil || !ok || name != "implementation" {
		t.Fatalf("Load = (%q, %v, %v), want (implementation, true, nil)", name, ok, err)
	}

	// Overwriting is idempotent.
	if err := s.Save("implementation"); err != nil {
		t.Fatalf("repeat Save: %v", err)
	}
	if err := s.Save("testing"); err != nil {
		t.Fatalf("Save new: %v", err)
	}
	name, _, _ = s.Load()
	if name != "testing" {
		t.Errorf("pointer = %q, want testing", name)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.Load(); ok {
		t.Error("cleared pointer should read as uninitialized")
	}

	// Clearing again is a no-op.
	if err := s.Clear(); err != nil {
		t.Errorf("repeat Clear: %v", err)
	}
}

func TestStore_Markers(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.Marker("planning"); ok {
		t.Fatal("missing marker should report not found")
	}

	m := Marker{Phase: "planning", Ordinal: 1, CompletedAt: time.Now().UTC(), Deliverables: []string{"plan-doc"}}
	if err := s.WriteMarker(m); err != nil {
		t.Fatalf("WriteMarker: %v", err)
	}

	got, ok := s.Marker("planning")
	if !ok {
		t.Fatal("marker should be found")
	}
	if !got.Valid("planning") {
		t.Errorf("marker should verify, got %+v", got)
	}
	if got.Valid("design") {
		t.Error("marker must not verify for a different phase")
	}

	if err := s.ClearMarkers(); err != nil {
		t.Fatalf("ClearMarkers: %v", err)
	}
	if _, ok := s.Marker("planning"); ok {
		t.Error("cleared marker should be gone")
	}
}

func TestStore_CorruptMarkerIsUnverifiable(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(s.dir, runsDir, "planning.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Marker("planning"); ok {
		t.Error("corrupt marker must not verify")
	}
}

func TestStore_RunRecords(t *testing.T) {
	s := newTestStore(t)

	if s.RunComplete("implementation") {
		t.Fatal("fresh phase should have no run record")
	}
	if err := s.MarkRunComplete("implementation"); err != nil {
		t.Fatalf("MarkRunComplete: %v", err)
	}
	if !s.RunComplete("implementation") {
		t.Error("run record should persist")
	}
	if err := s.ClearRun("implementation"); err != nil {
		t.Fatalf("ClearRun: %v", err)
	}
	if s.RunComplete("implementation") {
		t.Error("cleared run record should be gone")
	}
}
