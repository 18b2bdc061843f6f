package phase

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// Deliverable is one predicate a phase must satisfy before transition.
// It holds when Path (a literal file or a glob over the workspace)
// matches at least one existing file.
type Deliverable struct {
	Name        string
	Path        string
	Description string
}

// Holds evaluates the deliverable against the workspace root.
func (d Deliverable) Holds(workspace string) (bool, error) {
	if workspace == "" {
		return false, fmt.Errorf("no workspace configured")
	}

	g, err := glob.Compile(d.Path, '/')
	if err != nil {
		return false, fmt.Errorf("deliverable %s pattern %q: %w", d.Name, d.Path, err)
	}

	// Literal fast path.
	if fi, err := os.Stat(filepath.Join(workspace, filepath.FromSlash(d.Path))); err == nil && !fi.IsDir() {
		return true, nil
	}

	found := false
	walkErr := filepath.WalkDir(workspace, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workspace, path)
		if err != nil {
			return nil
		}
		if g.Match(filepath.ToSlash(rel)) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return false, walkErr
	}
	return found, nil
}

// Phase is one stage of the workflow, loaded from configuration.
type Phase struct {
	Name    string
	Ordinal int // 1-based position in the cycle

	// Lane is the whitelist of operation categories legal while this
	// phase is active.
	Lane []string

	// Deliverables must all hold before the phase can be left.
	Deliverables []Deliverable

	// MaxWorkers is the phase concurrency ceiling. Zero means no cap.
	MaxWorkers int
}

// Allows reports whether an operation category is in the phase's lane.
func (p Phase) Allows(category string) bool {
	for _, c := range p.Lane {
		if c == category {
			return true
		}
	}
	return false
}

// DefaultPhases is the built-in seven-stage workflow used when the
// configuration does not declare its own.
func DefaultPhases() []Phase {
	names := []struct {
		name string
		lane []string
	}{
		{"planning", []string{"plan-edit"}},
		{"design", []string{"plan-edit", "doc-edit"}},
		{"implementation", []string{"code-edit", "doc-edit"}},
		{"testing", []string{"code-edit", "test-run"}},
		{"review", []string{"review", "doc-edit"}},
		{"release", []string{"release-tag"}},
		{"retrospective", []string{"doc-edit"}},
	}
	phases := make([]Phase, len(names))
	for i, n := range names {
		phases[i] = Phase{Name: n.name, Ordinal: i + 1, Lane: n.lane}
	}
	return phases
}
