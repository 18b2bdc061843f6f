package reslock

import (
	"context"
	"sync"
	"testing"
	"time"

	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/Iron-Ham/phasegate/internal/event"
)

func TestManager_AcquireAndRelease(t *testing.T) {
	m := NewManager()

	if err := m.Acquire(context.Background(), "config/**", "group:a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	holder, ok := m.Holder("config/**")
	if !ok || holder != "group:a" {
		t.Errorf("Holder() = %q, %v; want group:a, true", holder, ok)
	}

	m.Release("config/**", "group:a")
	if _, ok := m.Holder("config/**"); ok {
		t.Error("resource should be free after Release")
	}
}

func TestManager_ReacquireBySameHolderIsNoop(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	if err := m.Acquire(ctx, "db/schema", "group:a"); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if err := m.Acquire(ctx, "db/schema", "group:a"); err != nil {
		t.Fatalf("re-acquire by holder should succeed: %v", err)
	}
}

func TestManager_AcquireTimesOutWithDenial(t *testing.T) {
	m := NewManager(WithDefaultTimeout(50 * time.Millisecond))
	ctx := context.Background()

	if err := m.Acquire(ctx, "api/routes", "group:a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	err := m.Acquire(ctx, "api/routes", "group:b")
	if err == nil {
		t.Fatal("expected timeout denial, got nil")
	}
	if !errs.Is(err, errs.ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}

	var lockErr *errs.LockError
	if !errs.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if lockErr.Holder != "group:a" {
		t.Errorf("denial should name the current holder, got %q", lockErr.Holder)
	}
}

func TestManager_ReleaseIsIdempotentAndOwnerChecked(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	if err := m.Acquire(ctx, "ci/pipeline", "group:a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Non-holder release is a no-op.
	m.Release("ci/pipeline", "group:b")
	if holder, _ := m.Holder("ci/pipeline"); holder != "group:a" {
		t.Errorf("non-holder release must not steal the lock, holder = %q", holder)
	}

	// Double release does not panic or error.
	m.Release("ci/pipeline", "group:a")
	m.Release("ci/pipeline", "group:a")
	m.Release("never/held", "group:a")
}

func TestManager_WaiterGetsLockAfterRelease(t *testing.T) {
	m := NewManager(WithDefaultTimeout(2 * time.Second))
	ctx := context.Background()

	if err := m.Acquire(ctx, "shared", "group:a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- m.Acquire(ctx, "shared", "group:b")
	}()

	// Give the waiter time to block, then release.
	time.Sleep(20 * time.Millisecond)
	m.Release("shared", "group:a")

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiter should acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not acquire within 1s of release")
	}

	if holder, _ := m.Holder("shared"); holder != "group:b" {
		t.Errorf("holder = %q, want group:b", holder)
	}
}

func TestManager_ContextCancellation(t *testing.T) {
	m := NewManager(WithDefaultTimeout(5 * time.Second))

	if err := m.Acquire(context.Background(), "slow", "group:a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- m.Acquire(ctx, "slow", "group:b")
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		if err == nil {
			t.Fatal("cancelled acquire should return an error")
		}
		if !errs.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return within 1s")
	}
}

func TestManager_ClassTimeouts(t *testing.T) {
	m := NewManager(
		WithDefaultTimeout(time.Minute),
		WithClassTimeout("config", 30*time.Millisecond),
		WithClassifier(func(resource string) string {
			if resource == "config/**" {
				return "config"
			}
			return ""
		}),
	)

	if err := m.Acquire(context.Background(), "config/**", "group:a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	err := m.Acquire(context.Background(), "config/**", "group:b")
	elapsed := time.Since(start)

	if !errs.Is(err, errs.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("class timeout not honored, waited %s", elapsed)
	}
}

func TestPrefixClassifier(t *testing.T) {
	classify := PrefixClassifier("config", "config/secrets", "db")

	tests := []struct {
		resource string
		want     string
	}{
		{"config", "config"},
		{"config/app.yaml", "config"},
		{"config/secrets/key.pem", "config/secrets"},
		{"configuration.yaml", ""},
		{"db/schema.sql", "db"},
		{"docs/readme.md", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := classify(tt.resource); got != tt.want {
			t.Errorf("classify(%q) = %q, want %q", tt.resource, got, tt.want)
		}
	}
}

func TestManager_ClassTimeoutWithoutExplicitClassifier(t *testing.T) {
	// Class timeouts must apply even when the caller configures only the
	// class map, matching what the engine builds from config.
	m := NewManager(
		WithDefaultTimeout(time.Minute),
		WithClassTimeout("config", 30*time.Millisecond),
	)

	if err := m.Acquire(context.Background(), "config/app.yaml", "group:a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	err := m.Acquire(context.Background(), "config/app.yaml", "group:b")
	elapsed := time.Since(start)

	if !errs.Is(err, errs.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("class timeout not applied to config/app.yaml, waited %s", elapsed)
	}
}

func TestManager_ReleaseAll(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	for _, r := range []string{"a", "b", "c"} {
		if err := m.Acquire(ctx, r, "group:x"); err != nil {
			t.Fatalf("Acquire(%s) failed: %v", r, err)
		}
	}
	if err := m.Acquire(ctx, "d", "group:y"); err != nil {
		t.Fatalf("Acquire(d) failed: %v", err)
	}

	m.ReleaseAll("group:x")

	if len(m.Holdings()) != 1 {
		t.Errorf("Holdings() = %d locks, want 1", len(m.Holdings()))
	}
	if holder, _ := m.Holder("d"); holder != "group:y" {
		t.Errorf("unrelated holding should survive ReleaseAll, holder = %q", holder)
	}
}

func TestManager_PublishesEvents(t *testing.T) {
	bus := event.NewBus()
	var mu sync.Mutex
	var types []string
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		types = append(types, e.EventType())
		mu.Unlock()
	})

	m := NewManager(WithBus(bus), WithDefaultTimeout(20*time.Millisecond))
	ctx := context.Background()

	if err := m.Acquire(ctx, "r", "group:a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	_ = m.Acquire(ctx, "r", "group:b") // times out

	mu.Lock()
	defer mu.Unlock()
	if len(types) != 2 || types[0] != "lock.acquired" || types[1] != "lock.timeout" {
		t.Errorf("events = %v, want [lock.acquired lock.timeout]", types)
	}
}

func TestManager_MutualExclusion(t *testing.T) {
	m := NewManager(WithDefaultTimeout(5 * time.Second))
	ctx := context.Background()

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			holder := string(rune('a' + id))
			if err := m.Acquire(ctx, "critical", holder); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
			m.Release("critical", holder)
		}(i)
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInCritical)
	}
}
