package schedule

import (
	"context"
	"time"
)

// Dependency is an edge from one group to another.
type Dependency struct {
	// Group is the ID of the predecessor.
	Group string

	// BeforeStart requires the predecessor to fully complete before the
	// dependent group may start. Edges without it only order launches
	// within a wave.
	BeforeStart bool
}

// Group is one schedulable unit of parallel work within a phase.
type Group struct {
	ID          string
	Description string

	// Patterns are the resource patterns the group declares it will touch.
	Patterns []string

	// Dependencies are edges to groups that must run earlier.
	Dependencies []Dependency

	// MaxWorkers caps the workers handed to this group's task.
	// Zero means no group-level cap.
	MaxWorkers int
}

// Task is what the scheduler hands a worker for one group.
type Task struct {
	Phase       string
	Group       string
	Description string

	// Workers is the concurrency the worker may use, already clamped to
	// the effective ceiling.
	Workers int
}

// Report is what a worker hands back on completion.
type Report struct {
	// Touched lists the resources the worker actually modified, used for
	// subsequent-wave conflict bookkeeping.
	Touched []string
}

// Worker executes one group's task. Implementations must honor context
// cancellation.
type Worker interface {
	Execute(ctx context.Context, task Task) (Report, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, task Task) (Report, error)

// Execute calls f.
func (f WorkerFunc) Execute(ctx context.Context, task Task) (Report, error) {
	return f(ctx, task)
}

// Status is the terminal state of one group.
type Status string

const (
	// StatusSuccess means the group's task completed.
	StatusSuccess Status = "success"

	// StatusFailure means the group's task failed.
	StatusFailure Status = "failure"

	// StatusConflict means a conflict was detected while the group ran.
	StatusConflict Status = "conflict-detected-midrun"

	// StatusSkipped means the group never started because the run aborted.
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one group.
type Result struct {
	Group    string
	Status   Status
	Err      error
	Touched  []string
	Attempts int
	Wave     int
	Duration time.Duration
}

// Outcome is the structured result of a whole phase run.
type Outcome struct {
	Phase   string
	Waves   int
	Results []Result

	// Aborted is set when the run was abandoned; AbortReason explains why.
	Aborted     bool
	AbortReason string
}

// Success reports whether every group completed.
func (o *Outcome) Success() bool {
	if o.Aborted {
		return false
	}
	for _, r := range o.Results {
		if r.Status != StatusSuccess {
			return false
		}
	}
	return true
}

// Failures returns the results of groups that did not succeed.
func (o *Outcome) Failures() []Result {
	var out []Result
	for _, r := range o.Results {
		if r.Status != StatusSuccess {
			out = append(out, r)
		}
	}
	return out
}

// Result returns the result for a group, if present.
func (o *Outcome) Result(group string) (Result, bool) {
	for _, r := range o.Results {
		if r.Group == group {
			return r, true
		}
	}
	return Result{}, false
}
