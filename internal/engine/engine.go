// Package engine wires the phase gate, lock manager, conflict detector,
// downgrade engine and scheduler into one facade the command surface
// drives. Every component shares a single event bus and logger.
package engine

import (
	"context"

	"github.com/Iron-Ham/phasegate/internal/assess"
	"github.com/Iron-Ham/phasegate/internal/config"
	"github.com/Iron-Ham/phasegate/internal/conflict"
	"github.com/Iron-Ham/phasegate/internal/downgrade"
	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/Iron-Ham/phasegate/internal/event"
	"github.com/Iron-Ham/phasegate/internal/logging"
	"github.com/Iron-Ham/phasegate/internal/phase"
	"github.com/Iron-Ham/phasegate/internal/reslock"
	"github.com/Iron-Ham/phasegate/internal/schedule"
)

// Option configures an Engine.
type Option func(*Engine)

// WithWorker sets the worker the scheduler hands group tasks to.
func WithWorker(w schedule.Worker) Option {
	return func(e *Engine) { e.worker = w }
}

// WithBus sets the event bus shared by all components.
func WithBus(bus *event.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger sets the logger. Without it the engine opens a log file
// under the state dir.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine is the assembled orchestration engine.
type Engine struct {
	cfg    *config.Config
	bus    *event.Bus
	log    *logging.Logger
	worker schedule.Worker

	machine    *phase.Machine
	locks      *reslock.Manager
	detector   *conflict.Detector
	downgrades *downgrade.Engine

	ownsLog bool
}

// New assembles an Engine from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}

	if e.bus == nil {
		e.bus = event.NewBus()
	}
	if e.log == nil {
		log, err := logging.NewLogger(cfg.ResolveStateDir(), cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		e.log = log
		e.ownsLog = true
	}

	store, err := phase.NewStore(cfg.ResolveStateDir())
	if err != nil {
		return nil, err
	}
	e.machine, err = phase.NewMachine(cfg.PhaseList(), store,
		phase.WithBus(e.bus),
		phase.WithLogger(e.log),
		phase.WithWorkspace(cfg.ResolveWorkspace()),
	)
	if err != nil {
		return nil, err
	}

	e.locks = reslock.NewManager(append(cfg.LockOptions(), reslock.WithBus(e.bus))...)

	conflictRules, err := cfg.ConflictRuleSet()
	if err != nil {
		return nil, err
	}
	e.detector = conflict.NewDetector(conflictRules, conflict.WithBus(e.bus))

	downgradeRules, err := cfg.DowngradeRuleSet()
	if err != nil {
		return nil, err
	}
	e.downgrades = downgrade.NewEngine(
		downgrade.WithRules(downgradeRules),
		downgrade.WithConflictThreshold(cfg.Downgrade.ConflictThreshold),
		downgrade.WithConflictDelay(cfg.Downgrade.ConflictDelay()),
		downgrade.WithBus(e.bus),
	)

	return e, nil
}

// Bus returns the shared event bus.
func (e *Engine) Bus() *event.Bus {
	return e.bus
}

// Machine returns the phase gate state machine.
func (e *Engine) Machine() *phase.Machine {
	return e.machine
}

// Close releases resources the engine opened itself.
func (e *Engine) Close() error {
	if e.ownsLog {
		return e.log.Close()
	}
	return nil
}

// Init initializes the phase pointer to the first phase.
func (e *Engine) Init() (phase.Phase, error) {
	return e.machine.Initialize()
}

// Current returns the active phase.
func (e *Engine) Current() (phase.Phase, error) {
	return e.machine.Current()
}

// Status is a point-in-time view of the gate and the lock table.
type Status struct {
	Phase       phase.Phase
	RunComplete bool
	Unmet       []phase.Deliverable
	Holdings    []reslock.Holding
}

// Status reports the active phase, its gate readiness and held locks.
func (e *Engine) Status() (Status, error) {
	current, err := e.machine.Current()
	if err != nil {
		return Status{}, err
	}
	unmet, err := e.machine.UnmetDeliverables(current)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Phase:       current,
		RunComplete: e.machine.RunComplete(),
		Unmet:       unmet,
		Holdings:    e.locks.Holdings(),
	}, nil
}

// Authorize checks an operation category against the active phase lane.
func (e *Engine) Authorize(category string) error {
	return e.machine.Authorize(category)
}

// Advance moves the gate to the next phase if the current one is done.
func (e *Engine) Advance() (phase.Phase, error) {
	return e.machine.Advance()
}

// Jump moves the gate forward to a non-adjacent phase, verifying the
// completion markers of every phase in between.
func (e *Engine) Jump(target string) (phase.Phase, error) {
	return e.machine.Jump(target)
}

// Reset clears all persisted state and returns to the first phase.
func (e *Engine) Reset() (phase.Phase, error) {
	return e.machine.Reset()
}

// Assess scores a task description against the active phase's risk
// table and returns the concurrency recommendation.
func (e *Engine) Assess(description string) (assess.Assessment, error) {
	current, err := e.machine.Current()
	if err != nil {
		return assess.Assessment{}, err
	}
	return assess.Assess(description, e.cfg.AssessTable(current.Name)), nil
}

// Run assesses the description, loads the active phase's groups and
// executes them through the scheduler. A fully successful run satisfies
// the gate's run requirement.
func (e *Engine) Run(ctx context.Context, description string) (*schedule.Outcome, error) {
	if e.worker == nil {
		return nil, errs.NewScheduleError("no worker configured", nil)
	}

	current, err := e.machine.Current()
	if err != nil {
		return nil, err
	}

	groups := e.cfg.GroupsFor(current.Name)
	if len(groups) == 0 {
		return nil, errs.NewNotFoundError("phase groups", current.Name)
	}

	assessment := assess.Assess(description, e.cfg.AssessTable(current.Name))
	e.log.WithPhase(current.Name).Info("starting phase run",
		"radius", assessment.Radius,
		"category", assessment.Category,
		"workers", assessment.Workers,
	)

	opts := []schedule.Option{
		schedule.WithLockManager(e.locks),
		schedule.WithDetector(e.detector),
		schedule.WithDowngradeEngine(e.downgrades),
		schedule.WithBus(e.bus),
		schedule.WithLogger(e.log),
		schedule.WithRetry(e.cfg.Retry.MaxAttempts, e.cfg.Retry.Backoff()),
	}

	// Watch the workspace while groups run so undeclared writes demote
	// the offending group. A watcher failure degrades to an unwatched run.
	if watcher, werr := conflict.NewWatcher(); werr != nil {
		e.log.WithPhase(current.Name).Warn("workspace watcher unavailable", "error", werr.Error())
	} else {
		watcher.Start()
		defer watcher.Stop()
		opts = append(opts, schedule.WithWatcher(watcher, e.cfg.ResolveWorkspace()))
	}

	sched := schedule.NewScheduler(e.worker, opts...)

	outcome, err := sched.Run(ctx, current.Name, groups, assessment, current.MaxWorkers)
	if err != nil {
		return outcome, err
	}
	if outcome.Success() {
		if err := e.machine.MarkRunComplete(); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}
