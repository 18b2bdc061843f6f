package reslock

import (
	"context"
	"strings"
	"sync"
	"time"

	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/Iron-Ham/phasegate/internal/event"
)

const defaultAcquireTimeout = 30 * time.Second

// Holding describes an active lock for status reporting.
type Holding struct {
	Resource   string
	Holder     string
	AcquiredAt time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTimeout sets the acquire timeout for resources without a class.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.defaultTimeout = d
	}
}

// WithClassTimeout sets the acquire timeout for one resource class.
func WithClassTimeout(class string, d time.Duration) Option {
	return func(m *Manager) {
		m.classTimeouts[class] = d
	}
}

// WithClassifier sets the function mapping a resource to its class.
// An empty class means "use the default timeout".
func WithClassifier(fn func(resource string) string) Option {
	return func(m *Manager) {
		m.classify = fn
	}
}

// WithBus sets the event bus for lock observability events.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// PrefixClassifier returns a classifier mapping a resource to the longest
// class that is a path prefix of it. "config" classifies "config/app.yaml"
// but not "configuration.yaml".
func PrefixClassifier(classes ...string) func(resource string) string {
	return func(resource string) string {
		best := ""
		for _, class := range classes {
			if class == "" {
				continue
			}
			if resource == class || strings.HasPrefix(resource, class+"/") {
				if len(class) > len(best) {
					best = class
				}
			}
		}
		return best
	}
}

// Manager grants exclusive advisory access to named resources.
// Waiters block on a condition variable and re-check on every release.
type Manager struct {
	mu    sync.Mutex
	cond  *sync.Cond
	locks map[string]Holding // resource -> active holding

	defaultTimeout time.Duration
	classTimeouts  map[string]time.Duration
	classify       func(resource string) string
	bus            *event.Bus
}

// NewManager creates a Manager with the given options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks:          make(map[string]Holding),
		defaultTimeout: defaultAcquireTimeout,
		classTimeouts:  make(map[string]time.Duration),
	}
	m.cond = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	if m.classify == nil && len(m.classTimeouts) > 0 {
		classes := make([]string, 0, len(m.classTimeouts))
		for class := range m.classTimeouts {
			classes = append(classes, class)
		}
		m.classify = PrefixClassifier(classes...)
	}
	return m
}

// Acquire blocks until the resource is free or the class timeout elapses.
// On timeout it returns a LockError wrapping ErrLockTimeout; the caller is
// expected to route that denial through the downgrade engine.
func (m *Manager) Acquire(ctx context.Context, resource, holder string) error {
	return m.AcquireWithTimeout(ctx, resource, holder, m.timeoutFor(resource))
}

// AcquireWithTimeout is Acquire with an explicit timeout, overriding the
// resource class configuration.
func (m *Manager) AcquireWithTimeout(ctx context.Context, resource, holder string, timeout time.Duration) error {
	start := time.Now()
	deadline := start.Add(timeout)

	m.mu.Lock()

	// Wake blocked waiters when the context is cancelled or the deadline
	// passes, so they can re-evaluate instead of waiting forever.
	done := make(chan struct{})
	defer close(done)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	go func() {
		select {
		case <-ctx.Done():
			m.cond.Broadcast()
		case <-timer.C:
			m.cond.Broadcast()
		case <-done:
		}
	}()

	for {
		existing, held := m.locks[resource]
		if !held {
			m.locks[resource] = Holding{
				Resource:   resource,
				Holder:     holder,
				AcquiredAt: time.Now(),
			}
			m.mu.Unlock()
			m.publishAcquired(resource, holder, time.Since(start))
			return nil
		}
		if existing.Holder == holder {
			// Re-acquire by the current holder is a no-op grant.
			m.mu.Unlock()
			return nil
		}

		if err := ctx.Err(); err != nil {
			m.mu.Unlock()
			return errs.NewLockError("acquire canceled", err).
				WithResource(resource).
				WithHolder(existing.Holder)
		}
		if !time.Now().Before(deadline) {
			heldBy := existing.Holder
			m.mu.Unlock()
			m.publishTimeout(resource, holder, heldBy)
			cause := errs.NewTimeoutError("lock acquisition", timeout).WithCause(errs.ErrLockTimeout)
			return errs.NewLockError("acquire timed out", cause).
				WithResource(resource).
				WithHolder(heldBy)
		}

		m.cond.Wait()
	}
}

// TryAcquire grants the resource immediately or reports the current holder.
// It never blocks.
func (m *Manager) TryAcquire(resource, holder string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, held := m.locks[resource]; held {
		if existing.Holder == holder {
			return true, holder
		}
		return false, existing.Holder
	}
	m.locks[resource] = Holding{
		Resource:   resource,
		Holder:     holder,
		AcquiredAt: time.Now(),
	}
	return true, holder
}

// Release relinquishes the resource. It is idempotent and a no-op if the
// caller is not the current holder.
func (m *Manager) Release(resource, holder string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, held := m.locks[resource]
	if !held || existing.Holder != holder {
		return
	}
	delete(m.locks, resource)
	m.cond.Broadcast()
}

// ReleaseAll relinquishes every resource held by the given holder.
// Used when a group finishes or a run is aborted.
func (m *Manager) ReleaseAll(holder string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := false
	for resource, h := range m.locks {
		if h.Holder == holder {
			delete(m.locks, resource)
			released = true
		}
	}
	if released {
		m.cond.Broadcast()
	}
}

// Holder returns the current holder of a resource, if any.
func (m *Manager) Holder(resource string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.locks[resource]
	if !ok {
		return "", false
	}
	return h.Holder, true
}

// Holdings returns a snapshot of all active locks.
func (m *Manager) Holdings() []Holding {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Holding, 0, len(m.locks))
	for _, h := range m.locks {
		out = append(out, h)
	}
	return out
}

// timeoutFor resolves a resource's acquire timeout from its class.
func (m *Manager) timeoutFor(resource string) time.Duration {
	if m.classify != nil {
		if class := m.classify(resource); class != "" {
			if d, ok := m.classTimeouts[class]; ok {
				return d
			}
		}
	}
	return m.defaultTimeout
}

func (m *Manager) publishAcquired(resource, holder string, waited time.Duration) {
	if m.bus != nil {
		m.bus.Publish(event.NewLockAcquiredEvent(resource, holder, waited))
	}
}

func (m *Manager) publishTimeout(resource, holder, heldBy string) {
	if m.bus != nil {
		m.bus.Publish(event.NewLockTimeoutEvent(resource, holder, heldBy))
	}
}
