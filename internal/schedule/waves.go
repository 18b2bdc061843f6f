package schedule

import (
	"fmt"
	"sort"

	errs "github.com/Iron-Ham/phasegate/internal/errors"
)

// layerWaves arranges groups into launch waves. A group's wave is one
// past the latest wave of any predecessor it must-complete on; groups
// with no blocking edges land in wave zero. Soft edges (BeforeStart
// false) only order launches inside a wave.
func layerWaves(groups []Group) ([][]Group, error) {
	byID := make(map[string]Group, len(groups))
	for _, g := range groups {
		if _, dup := byID[g.ID]; dup {
			return nil, errs.NewValidationError("duplicate group ID").WithField("group").WithValue(g.ID)
		}
		byID[g.ID] = g
	}

	for _, g := range groups {
		for _, dep := range g.Dependencies {
			if _, ok := byID[dep.Group]; !ok {
				return nil, errs.NewValidationError(
					fmt.Sprintf("group %s depends on undefined group %s", g.ID, dep.Group),
				).WithField("dependency").WithValue(dep.Group)
			}
			if dep.Group == g.ID {
				return nil, errs.NewValidationError("group depends on itself").
					WithField("dependency").WithValue(g.ID)
			}
		}
	}

	if cycle := findCycle(groups, byID); cycle != "" {
		return nil, fmt.Errorf("dependency cycle through %s: %w", cycle, errs.ErrDependencyCycle)
	}

	waveOf := make(map[string]int, len(groups))
	var assign func(id string) int
	assign = func(id string) int {
		if w, ok := waveOf[id]; ok {
			return w
		}
		wave := 0
		for _, dep := range byID[id].Dependencies {
			if !dep.BeforeStart {
				continue
			}
			if w := assign(dep.Group) + 1; w > wave {
				wave = w
			}
		}
		waveOf[id] = wave
		return wave
	}

	maxWave := 0
	for _, g := range groups {
		if w := assign(g.ID); w > maxWave {
			maxWave = w
		}
	}

	waves := make([][]Group, maxWave+1)
	for _, g := range groups {
		w := waveOf[g.ID]
		waves[w] = append(waves[w], g)
	}
	for _, wave := range waves {
		sortWave(wave)
	}
	return waves, nil
}

// sortWave orders a wave so soft predecessors launch before their
// dependents, falling back to ID order for determinism.
func sortWave(wave []Group) {
	softDeps := make(map[string]map[string]bool, len(wave))
	inWave := make(map[string]bool, len(wave))
	for _, g := range wave {
		inWave[g.ID] = true
	}
	for _, g := range wave {
		for _, dep := range g.Dependencies {
			if !dep.BeforeStart && inWave[dep.Group] {
				if softDeps[g.ID] == nil {
					softDeps[g.ID] = make(map[string]bool)
				}
				softDeps[g.ID][dep.Group] = true
			}
		}
	}

	sort.SliceStable(wave, func(i, j int) bool {
		if softDeps[wave[j].ID][wave[i].ID] {
			return true
		}
		if softDeps[wave[i].ID][wave[j].ID] {
			return false
		}
		return wave[i].ID < wave[j].ID
	})
}

// findCycle runs a DFS over every dependency edge and returns the ID of
// a group on a cycle, or "".
func findCycle(groups []Group, byID map[string]Group) string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(groups))

	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case done:
			return ""
		}
		state[id] = visiting
		for _, dep := range byID[id].Dependencies {
			if hit := visit(dep.Group); hit != "" {
				return hit
			}
		}
		state[id] = done
		return ""
	}

	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if hit := visit(id); hit != "" {
			return hit
		}
	}
	return ""
}

// dependents maps each group ID to the IDs of groups that must-complete
// on it. A failed group with dependents is a critical path failure.
func dependents(groups []Group) map[string][]string {
	out := make(map[string][]string)
	for _, g := range groups {
		for _, dep := range g.Dependencies {
			if dep.BeforeStart {
				out[dep.Group] = append(out[dep.Group], g.ID)
			}
		}
	}
	return out
}
