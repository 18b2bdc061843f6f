package phase

import (
	"fmt"
	"strings"
	"sync"

	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/Iron-Ham/phasegate/internal/event"
	"github.com/Iron-Ham/phasegate/internal/logging"
)

// Option configures a Machine.
type Option func(*Machine)

// WithBus publishes phase lifecycle events.
func WithBus(bus *event.Bus) Option {
	return func(m *Machine) { m.bus = bus }
}

// WithLogger sets the structured logger.
func WithLogger(log *logging.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// WithWorkspace sets the workspace root deliverable predicates evaluate
// against.
func WithWorkspace(dir string) Option {
	return func(m *Machine) { m.workspace = dir }
}

// Machine is the gate state machine over an ordered, cyclic phase list.
// All methods are safe for concurrent use; the persisted pointer is the
// single source of truth for the current phase.
type Machine struct {
	mu        sync.Mutex
	phases    []Phase
	store     *Store
	workspace string
	bus       *event.Bus
	log       *logging.Logger
}

// NewMachine creates a Machine over the given phases, which must be
// non-empty and ordinal-ordered.
func NewMachine(phases []Phase, store *Store, opts ...Option) (*Machine, error) {
	if len(phases) == 0 {
		return nil, errs.NewConfigError("no phases configured", errs.ErrConfigInvalid)
	}
	for i, p := range phases {
		if p.Ordinal != i+1 {
			return nil, errs.NewConfigError(
				fmt.Sprintf("phase %s has ordinal %d, expected %d", p.Name, p.Ordinal, i+1),
				errs.ErrConfigInvalid)
		}
	}

	m := &Machine{
		phases: phases,
		store:  store,
		log:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Phases returns the configured phase list.
func (m *Machine) Phases() []Phase {
	out := make([]Phase, len(m.phases))
	copy(out, m.phases)
	return out
}

// Initialize starts a fresh unit of work at the first phase. It refuses
// when a pointer already exists.
func (m *Machine) Initialize() (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name, ok, err := m.store.Load(); err != nil {
		return Phase{}, err
	} else if ok {
		return Phase{}, errs.NewPhaseError(
			fmt.Sprintf("already initialized at phase %s; reset first", name),
			errs.ErrAlreadyInitialized,
		).WithPhase(name)
	}

	first := m.phases[0]
	if err := m.store.Save(first.Name); err != nil {
		return Phase{}, err
	}
	m.log.Info("initialized", "phase", first.Name)
	return first, nil
}

// Current returns the active phase. Uninitialized machines refuse.
func (m *Machine) Current() (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked()
}

func (m *Machine) currentLocked() (Phase, error) {
	name, ok, err := m.store.Load()
	if err != nil {
		return Phase{}, err
	}
	if !ok {
		return Phase{}, errs.NewPhaseError("no unit of work in progress", errs.ErrPhaseUninitialized)
	}
	p, ok := m.lookup(name)
	if !ok {
		return Phase{}, errs.NewPhaseError(
			fmt.Sprintf("persisted phase %q is not in the configured workflow", name),
			errs.ErrPhaseNotFound,
		).WithPhase(name)
	}
	return p, nil
}

// Authorize checks an operation category against the active phase's lane.
// Out-of-lane operations are refused, naming the lane.
func (m *Machine) Authorize(category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.currentLocked()
	if err != nil {
		return err
	}
	if current.Allows(category) {
		return nil
	}

	condition := fmt.Sprintf("operation category %q is outside the %s lane (allowed: %s)",
		category, current.Name, strings.Join(current.Lane, ", "))
	m.publishRefusal(current.Name, "authorize", condition)
	return errs.NewPhaseError(condition, errs.ErrLaneViolation).
		WithPhase(current.Name).
		WithCondition(condition)
}

// MarkRunComplete records that the scheduler finished the active phase
// successfully. Advance requires it.
func (m *Machine) MarkRunComplete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.currentLocked()
	if err != nil {
		return err
	}
	return m.store.MarkRunComplete(current.Name)
}

// RunComplete reports whether the active phase has a recorded
// successful scheduler run.
func (m *Machine) RunComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.currentLocked()
	if err != nil {
		return false
	}
	return m.store.RunComplete(current.Name)
}

// UnmetDeliverables evaluates the phase's deliverable predicates and
// returns the ones that do not hold.
func (m *Machine) UnmetDeliverables(p Phase) ([]Deliverable, error) {
	var unmet []Deliverable
	for _, d := range p.Deliverables {
		ok, err := d.Holds(m.workspace)
		if err != nil {
			return nil, err
		}
		if !ok {
			unmet = append(unmet, d)
		}
	}
	return unmet, nil
}

// Advance transitions from phase n to n+1. It requires a successful
// scheduler run and every deliverable predicate passing. Completing the
// terminal phase clears the pointer so the next unit of work starts
// uninitialized.
func (m *Machine) Advance() (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.currentLocked()
	if err != nil {
		return Phase{}, err
	}

	if !m.store.RunComplete(current.Name) {
		condition := fmt.Sprintf("phase %s has no successful scheduler run on record", current.Name)
		m.publishRefusal(current.Name, "advance", condition)
		return Phase{}, errs.NewPhaseError(condition, errs.ErrRunNotComplete).
			WithPhase(current.Name).
			WithCondition(condition)
	}

	unmet, err := m.UnmetDeliverables(current)
	if err != nil {
		return Phase{}, err
	}
	if len(unmet) > 0 {
		d := unmet[0]
		condition := fmt.Sprintf("deliverable %q (%s) does not hold", d.Name, d.Path)
		m.publishRefusal(current.Name, "advance", condition)
		return Phase{}, errs.NewPhaseError(condition, errs.ErrGateNotSatisfied).
			WithPhase(current.Name).
			WithCondition(condition)
	}

	if err := m.completeLocked(current); err != nil {
		return Phase{}, err
	}

	// Terminal phase: clear the pointer entirely. A new unit of work must
	// start uninitialized at the first phase, never inherit this one.
	if current.Ordinal == len(m.phases) {
		if err := m.store.Clear(); err != nil {
			return Phase{}, err
		}
		m.publish(event.NewPhaseClearedEvent(current.Name))
		m.log.Info("terminal phase complete, pointer cleared", "phase", current.Name)
		return Phase{}, nil
	}

	next := m.phases[current.Ordinal] // ordinals are 1-based
	if err := m.store.Save(next.Name); err != nil {
		return Phase{}, err
	}
	m.publish(event.NewPhaseAdvancedEvent(current.Name, next.Name))
	m.log.Info("advanced", "from", current.Name, "to", next.Name)
	return next, nil
}

// Jump transitions directly to a non-adjacent later phase. It is legal
// only when every intermediate phase's completion marker verifies; the
// refusal names the first phase that does not.
func (m *Machine) Jump(target string) (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.currentLocked()
	if err != nil {
		return Phase{}, err
	}

	tp, ok := m.lookup(target)
	if !ok {
		return Phase{}, errs.NewPhaseError(
			fmt.Sprintf("unknown phase %q", target), errs.ErrPhaseNotFound).WithPhase(target)
	}

	if tp.Ordinal <= current.Ordinal {
		condition := fmt.Sprintf("cannot jump backward from %s to %s; use reset", current.Name, tp.Name)
		m.publishRefusal(current.Name, "jump", condition)
		return Phase{}, errs.NewPhaseError(condition, errs.ErrNonAdjacentPhase).
			WithPhase(current.Name).
			WithCondition(condition)
	}

	if tp.Ordinal == current.Ordinal+1 {
		condition := fmt.Sprintf("%s is the next phase; use advance", tp.Name)
		m.publishRefusal(current.Name, "jump", condition)
		return Phase{}, errs.NewPhaseError(condition, errs.ErrNonAdjacentPhase).
			WithPhase(current.Name).
			WithCondition(condition)
	}

	// Every phase strictly between here and the target must have a
	// verifiable completion marker.
	for ord := current.Ordinal + 1; ord < tp.Ordinal; ord++ {
		p := m.phases[ord-1]
		marker, found := m.store.Marker(p.Name)
		if !found || !marker.Valid(p.Name) {
			condition := fmt.Sprintf("completion marker for phase %s is missing or unverifiable", p.Name)
			m.publishRefusal(current.Name, "jump", condition)
			return Phase{}, errs.NewPhaseError(condition, errs.ErrNonAdjacentPhase).
				WithPhase(p.Name).
				WithCondition(condition)
		}
	}

	if err := m.store.Save(tp.Name); err != nil {
		return Phase{}, err
	}
	m.publish(event.NewPhaseAdvancedEvent(current.Name, tp.Name))
	m.log.Info("jumped", "from", current.Name, "to", tp.Name)
	return tp, nil
}

// Reset abandons the current unit of work: pointer, markers and run
// records are cleared and the pointer returns to the first phase.
func (m *Machine) Reset() (Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return Phase{}, err
	}
	if err := m.store.ClearMarkers(); err != nil {
		return Phase{}, err
	}

	first := m.phases[0]
	if err := m.store.Save(first.Name); err != nil {
		return Phase{}, err
	}
	m.log.Info("reset", "phase", first.Name)
	return first, nil
}

// completeLocked writes the completion marker for a finished phase and
// clears its run record so re-entering it requires a fresh run.
func (m *Machine) completeLocked(p Phase) error {
	names := make([]string, len(p.Deliverables))
	for i, d := range p.Deliverables {
		names[i] = d.Name
	}
	if err := m.store.WriteMarker(Marker{
		Phase:        p.Name,
		Ordinal:      p.Ordinal,
		CompletedAt:  timeNow(),
		Deliverables: names,
	}); err != nil {
		return err
	}
	return m.store.ClearRun(p.Name)
}

func (m *Machine) lookup(name string) (Phase, bool) {
	for _, p := range m.phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

func (m *Machine) publish(e event.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

func (m *Machine) publishRefusal(phaseName, operation, condition string) {
	if m.bus != nil {
		m.bus.Publish(event.NewPhaseRefusedEvent(phaseName, operation, condition))
	}
	m.log.Warn("refused", "phase", phaseName, "operation", operation, "condition", condition)
}
