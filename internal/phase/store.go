package phase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	pointerFile = "phase"
	runsDir     = "runs"
)

// Marker is the persisted record of a completed phase. Its presence and
// integrity are what Jump verifies for intermediate phases.
type Marker struct {
	Phase       string    `json:"phase"`
	Ordinal     int       `json:"ordinal"`
	CompletedAt time.Time `json:"completed_at"`

	// Deliverables records the deliverable names that held at completion.
	Deliverables []string `json:"deliverables,omitempty"`
}

// Valid reports whether the marker is a verifiable completion record for
// the named phase.
func (m Marker) Valid(phaseName string) bool {
	return m.Phase == phaseName && !m.CompletedAt.IsZero()
}

// Store persists the phase pointer and completion markers under a state
// directory. The pointer is a single token file; its absence means
// uninitialized. All writes are atomic.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, runsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load reads the current phase pointer. ok is false when the pointer is
// absent (uninitialized).
func (s *Store) Load() (name string, ok bool, err error) {
	data, err := os.ReadFile(s.pointerPath())
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read phase pointer: %w", err)
	}
	name = strings.TrimSpace(string(data))
	if name == "" {
		return "", false, nil
	}
	return name, true, nil
}

// Save writes the phase pointer. Overwriting an existing pointer is
// idempotent.
func (s *Store) Save(name string) error {
	return atomicWriteFile(s.pointerPath(), []byte(name+"\n"), 0644)
}

// Clear removes the phase pointer. Clearing an absent pointer is a no-op.
func (s *Store) Clear() error {
	err := os.Remove(s.pointerPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear phase pointer: %w", err)
	}
	return nil
}

// WriteMarker persists the completion marker for a phase.
func (s *Store) WriteMarker(m Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode completion marker: %w", err)
	}
	return atomicWriteFile(s.markerPath(m.Phase), data, 0644)
}

// Marker reads the completion marker for a phase. ok is false when no
// marker exists or it cannot be decoded.
func (s *Store) Marker(phaseName string) (Marker, bool) {
	data, err := os.ReadFile(s.markerPath(phaseName))
	if err != nil {
		return Marker{}, false
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, false
	}
	return m, true
}

// ClearMarkers removes every completion marker. Used by reset.
func (s *Store) ClearMarkers() error {
	entries, err := os.ReadDir(filepath.Join(s.dir, runsDir))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, runsDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// MarkRunComplete records that the scheduler finished the named phase's
// run successfully. Advance requires this before it will transition.
func (s *Store) MarkRunComplete(phaseName string) error {
	return atomicWriteFile(s.runPath(phaseName), []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0644)
}

// RunComplete reports whether the named phase has a successful run on
// record.
func (s *Store) RunComplete(phaseName string) bool {
	_, err := os.Stat(s.runPath(phaseName))
	return err == nil
}

// ClearRun removes the run record for a phase, so a re-entered phase must
// run its scheduler again.
func (s *Store) ClearRun(phaseName string) error {
	err := os.Remove(s.runPath(phaseName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) pointerPath() string {
	return filepath.Join(s.dir, pointerFile)
}

func (s *Store) markerPath(phaseName string) string {
	return filepath.Join(s.dir, runsDir, phaseName+".json")
}

func (s *Store) runPath(phaseName string) string {
	return filepath.Join(s.dir, runsDir, phaseName+".run")
}

// atomicWriteFile writes data to a file atomically by writing to a
// temporary file first, then renaming, so the target is never seen in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
