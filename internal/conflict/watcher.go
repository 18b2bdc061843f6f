package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Report is one mid-run observation: a group wrote a path outside the
// resource patterns it declared.
type Report struct {
	GroupID string    // Group whose workspace produced the write
	Path    string    // Path relative to the workspace root
	When    time.Time // When the write was last observed
}

// Watcher observes group workspaces while a wave runs and reports writes
// that fall outside the group's declared resource patterns. Reports feed
// the downgrade engine as repeated-conflict signals; the watcher itself
// never stops a run.
type Watcher struct {
	watcher *fsnotify.Watcher

	// Map of group ID -> workspace root
	roots map[string]string

	// Map of group ID -> compiled declared patterns
	declared map[string][]glob.Glob

	// Map of relative path -> last undeclared write per group
	undeclared map[string]map[string]time.Time

	// Callback for undeclared-write notifications
	onReport func([]Report)

	// Paths to ignore (VCS metadata, editor droppings)
	ignorePaths []string

	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a mid-run workspace watcher.
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fw,
		roots:       make(map[string]string),
		declared:    make(map[string][]glob.Glob),
		undeclared:  make(map[string]map[string]time.Time),
		ignorePaths: []string{".git", ".phasegate", "node_modules", ".DS_Store"},
		stopCh:      make(chan struct{}),
	}, nil
}

// SetReportCallback sets the callback invoked when undeclared writes are
// observed. The callback runs on the watch loop goroutine.
func (w *Watcher) SetReportCallback(cb func([]Report)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReport = cb
}

// AddGroup starts watching a group's workspace. The declared patterns are
// compiled once here; a malformed pattern is an error.
func (w *Watcher) AddGroup(groupID, root string, patterns []string) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("workspace path does not exist: %s", root)
	}

	compiled := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return err
		}
		compiled[i] = g
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.roots[groupID] = root
	w.declared[groupID] = compiled

	if err := w.watcher.Add(root); err != nil {
		return err
	}
	return w.watchDirRecursive(root)
}

// watchDirRecursive adds all subdirectories to the watcher
func (w *Watcher) watchDirRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}

		base := filepath.Base(path)
		for _, ignore := range w.ignorePaths {
			if base == ignore {
				return filepath.SkipDir
			}
		}

		// fsnotify only watches directories
		if info.IsDir() {
			_ = w.watcher.Add(path)
		}

		return nil
	})
}

// RemoveGroup stops watching a group's workspace and drops its reports.
func (w *Watcher) RemoveGroup(groupID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	root, ok := w.roots[groupID]
	if !ok {
		return
	}

	_ = w.watcher.Remove(root)
	delete(w.roots, groupID)
	delete(w.declared, groupID)

	for relPath, groups := range w.undeclared {
		delete(groups, groupID)
		if len(groups) == 0 {
			delete(w.undeclared, relPath)
		}
	}
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher and releases the fsnotify handle. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

// watchLoop processes filesystem events with a short debounce, since most
// editors produce several events per save.
func (w *Watcher) watchLoop() {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	pendingEvents := make(map[string]fsnotify.Event)
	var pendingMu sync.Mutex

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			pendingMu.Lock()
			pendingEvents[ev.Name] = ev
			pendingMu.Unlock()

			debounceTimer.Reset(50 * time.Millisecond)

		case <-debounceTimer.C:
			pendingMu.Lock()
			events := pendingEvents
			pendingEvents = make(map[string]fsnotify.Event)
			pendingMu.Unlock()

			for _, ev := range events {
				w.handleFileEvent(ev)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			_ = err
		}
	}
}

// handleFileEvent checks a single write against the owning group's
// declared patterns.
func (w *Watcher) handleFileEvent(ev fsnotify.Event) {
	w.mu.Lock()

	path := ev.Name

	for _, ignore := range w.ignorePaths {
		if strings.Contains(path, string(filepath.Separator)+ignore+string(filepath.Separator)) ||
			strings.HasSuffix(path, string(filepath.Separator)+ignore) ||
			filepath.Base(path) == ignore {
			w.mu.Unlock()
			return
		}
	}

	// Groups may share a workspace root, so collect every owner. A write
	// declared by any owner is not reported for the others.
	owners := make(map[string]string)
	for id, root := range w.roots {
		if strings.HasPrefix(path, root) {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				continue
			}
			owners[id] = filepath.ToSlash(rel)
		}
	}
	if len(owners) == 0 {
		w.mu.Unlock()
		return // Not in any watched workspace
	}
	for id, relPath := range owners {
		for _, g := range w.declared[id] {
			if g.Match(relPath) {
				w.mu.Unlock()
				return // Declared write, nothing to report
			}
		}
	}

	now := time.Now()
	for id, relPath := range owners {
		if w.undeclared[relPath] == nil {
			w.undeclared[relPath] = make(map[string]time.Time)
		}
		w.undeclared[relPath][id] = now
	}

	reports := w.collectLocked()
	cb := w.onReport
	w.mu.Unlock()

	if cb != nil && len(reports) > 0 {
		cb(reports)
	}
}

func (w *Watcher) collectLocked() []Report {
	var reports []Report
	for relPath, groups := range w.undeclared {
		for id, when := range groups {
			reports = append(reports, Report{GroupID: id, Path: relPath, When: when})
		}
	}
	return reports
}

// Reports returns a copy of the current undeclared-write reports.
func (w *Watcher) Reports() []Report {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.collectLocked()
}

// HasReports returns true if any undeclared writes have been observed.
func (w *Watcher) HasReports() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.undeclared) > 0
}

// ClearOld drops reports older than maxAge.
func (w *Watcher) ClearOld(maxAge time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for relPath, groups := range w.undeclared {
		for id, when := range groups {
			if when.Before(cutoff) {
				delete(groups, id)
			}
		}
		if len(groups) == 0 {
			delete(w.undeclared, relPath)
		}
	}
}
