package downgrade

import (
	"testing"
	"time"

	"github.com/Iron-Ham/phasegate/internal/event"
)

func TestEngine_NoRules_NoDecision(t *testing.T) {
	e := NewEngine()
	e.BeginPhase(6)

	d := e.Evaluate(Signal{Kind: SignalLockTimeout, Resource: "config/app.yaml"})
	if d.Action != ActionNone {
		t.Errorf("unmatched signal should be a noop, got %+v", d)
	}
	if e.Ceiling() != 6 {
		t.Errorf("ceiling = %d, want 6", e.Ceiling())
	}
}

func TestEngine_RuleReducesCeiling(t *testing.T) {
	e := NewEngine(WithRules([]Rule{
		{ID: "lock-pressure", Trigger: SignalLockTimeout, Action: ActionReduce, Delta: 2, Notify: true},
	}))
	e.BeginPhase(6)

	d := e.Evaluate(Signal{Kind: SignalLockTimeout, Resource: "db/schema"})
	if d.Action != ActionReduce || d.Delta != 2 {
		t.Fatalf("expected reduce by 2, got %+v", d)
	}
	if d.Rule != "lock-pressure" {
		t.Errorf("decision rule = %q, want lock-pressure", d.Rule)
	}
	if !d.Notify {
		t.Error("rule marked notify should produce a notifying decision")
	}
	if e.Ceiling() != 4 {
		t.Errorf("ceiling = %d, want 4", e.Ceiling())
	}
}

func TestEngine_ReduceNeverBelowOne(t *testing.T) {
	e := NewEngine(WithRules([]Rule{
		{ID: "hard-cut", Trigger: SignalResourcePressure, Action: ActionReduce, Delta: 10},
	}))
	e.BeginPhase(4)

	e.Evaluate(Signal{Kind: SignalResourcePressure, Pressure: "memory", Level: "high"})
	if e.Ceiling() != 1 {
		t.Errorf("ceiling = %d, want 1", e.Ceiling())
	}
}

func TestEngine_CriticalPathAlwaysAborts(t *testing.T) {
	// A rule that would merely reduce must not shadow the critical path
	// escalation.
	e := NewEngine(WithRules([]Rule{
		{ID: "soft", Trigger: SignalCriticalPathFailure, Action: ActionReduce, Delta: 1},
	}))
	e.BeginPhase(6)

	d := e.Evaluate(Signal{Kind: SignalCriticalPathFailure})
	if d.Action != ActionAbort {
		t.Fatalf("critical path failure must abort, got %+v", d)
	}
	if !d.Notify {
		t.Error("abort decision should notify")
	}
	if !e.Aborted() {
		t.Error("engine should be aborted")
	}
	if e.Ceiling() != 0 {
		t.Errorf("aborted ceiling = %d, want 0", e.Ceiling())
	}

	// Terminal: later signals cannot un-abort.
	d = e.Evaluate(Signal{Kind: SignalLockTimeout})
	if d.Action != ActionAbort {
		t.Errorf("signals after abort should report abort, got %+v", d)
	}
}

func TestEngine_ThreeConflictsOnOneResourceSerialize(t *testing.T) {
	e := NewEngine()
	e.BeginPhase(6)

	sig := Signal{Kind: SignalRepeatedConflict, Resource: "config/app.yaml"}

	if d := e.Evaluate(sig); d.Action != ActionNone {
		t.Fatalf("first conflict should not escalate, got %+v", d)
	}
	if d := e.Evaluate(sig); d.Action != ActionNone {
		t.Fatalf("second conflict should not escalate, got %+v", d)
	}

	d := e.Evaluate(sig)
	if d.Action != ActionSerialize {
		t.Fatalf("third conflict should serialize, got %+v", d)
	}
	if d.Delay == 0 {
		t.Error("serialize escalation should carry a delay")
	}
	if !e.Serial() {
		t.Error("engine should report serial")
	}
	if e.Ceiling() != 1 {
		t.Errorf("serialized ceiling = %d, want 1", e.Ceiling())
	}
}

func TestEngine_ConflictCountersArePerResource(t *testing.T) {
	e := NewEngine()
	e.BeginPhase(6)

	e.Evaluate(Signal{Kind: SignalRepeatedConflict, Resource: "a"})
	e.Evaluate(Signal{Kind: SignalRepeatedConflict, Resource: "a"})
	d := e.Evaluate(Signal{Kind: SignalRepeatedConflict, Resource: "b"})

	if d.Action != ActionNone {
		t.Errorf("conflicts on different resources should not pool, got %+v", d)
	}
	if got := e.ConflictCount("a"); got != 2 {
		t.Errorf("ConflictCount(a) = %d, want 2", got)
	}
}

func TestEngine_BeginPhaseResetsCounters(t *testing.T) {
	e := NewEngine()
	e.BeginPhase(6)

	sig := Signal{Kind: SignalRepeatedConflict, Resource: "a"}
	e.Evaluate(sig)
	e.Evaluate(sig)

	e.BeginPhase(6)
	if got := e.ConflictCount("a"); got != 0 {
		t.Errorf("BeginPhase should reset counters, got %d", got)
	}
	if d := e.Evaluate(sig); d.Action != ActionNone {
		t.Errorf("fresh phase run should start counting over, got %+v", d)
	}
}

func TestEngine_MonotonicWithinPhaseRun(t *testing.T) {
	e := NewEngine(WithRules([]Rule{
		{ID: "serialize", Trigger: SignalTaskFailure, Action: ActionSerialize},
		{ID: "reduce", Trigger: SignalLockTimeout, Action: ActionReduce, Delta: 1},
	}))
	e.BeginPhase(6)

	if d := e.Evaluate(Signal{Kind: SignalTaskFailure}); d.Action != ActionSerialize {
		t.Fatalf("expected serialize, got %+v", d)
	}

	// A reduce after serialize would raise concurrency from 1; it must be
	// demoted to a noop.
	d := e.Evaluate(Signal{Kind: SignalLockTimeout})
	if d.Action != ActionNone {
		t.Errorf("reduce after serialize should be a noop, got %+v", d)
	}
	if e.Ceiling() != 1 {
		t.Errorf("ceiling = %d, want 1", e.Ceiling())
	}

	// A second serialize is also a noop.
	if d := e.Evaluate(Signal{Kind: SignalTaskFailure}); d.Action != ActionNone {
		t.Errorf("repeat serialize should be a noop, got %+v", d)
	}
}

func TestEngine_RuleMinCount(t *testing.T) {
	e := NewEngine(WithRules([]Rule{
		{ID: "flaky-io", Trigger: SignalTransientTimeout, MinCount: 3, Action: ActionReduce, Delta: 2},
	}))
	e.BeginPhase(6)

	if d := e.Evaluate(Signal{Kind: SignalTransientTimeout, Count: 2}); d.Action != ActionNone {
		t.Errorf("count below MinCount should not match, got %+v", d)
	}
	if d := e.Evaluate(Signal{Kind: SignalTransientTimeout, Count: 3}); d.Action != ActionReduce {
		t.Errorf("count at MinCount should match, got %+v", d)
	}
}

func TestEngine_RulePressureFilter(t *testing.T) {
	e := NewEngine(WithRules([]Rule{
		{ID: "mem", Trigger: SignalResourcePressure, Pressure: "memory", Level: "high", Action: ActionReduce, Delta: 2},
	}))
	e.BeginPhase(6)

	if d := e.Evaluate(Signal{Kind: SignalResourcePressure, Pressure: "workers", Level: "high"}); d.Action != ActionNone {
		t.Errorf("wrong pressure kind should not match, got %+v", d)
	}
	if d := e.Evaluate(Signal{Kind: SignalResourcePressure, Pressure: "memory", Level: "low"}); d.Action != ActionNone {
		t.Errorf("wrong level should not match, got %+v", d)
	}
	if d := e.Evaluate(Signal{Kind: SignalResourcePressure, Pressure: "memory", Level: "high"}); d.Action != ActionReduce {
		t.Errorf("matching pressure should reduce, got %+v", d)
	}
}

func TestEngine_PublishesEvents(t *testing.T) {
	bus := event.NewBus()
	var applied []event.Event
	bus.Subscribe("downgrade.applied", func(e event.Event) {
		applied = append(applied, e)
	})

	e := NewEngine(
		WithBus(bus),
		WithRules([]Rule{
			{ID: "lock", Trigger: SignalLockTimeout, Action: ActionReduce, Delta: 2},
		}),
	)
	e.BeginPhase(6)

	e.Evaluate(Signal{Kind: SignalLockTimeout})
	e.Evaluate(Signal{Kind: SignalTaskFailure}) // no rule, noop, no event

	if len(applied) != 1 {
		t.Fatalf("expected 1 downgrade event, got %d", len(applied))
	}
	ev, ok := applied[0].(event.DowngradeAppliedEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", applied[0])
	}
	if ev.From != 6 || ev.To != 4 {
		t.Errorf("event from/to = %d/%d, want 6/4", ev.From, ev.To)
	}
}

func TestResolve_LowerConcurrencyWins(t *testing.T) {
	tests := []struct {
		name string
		a, b Decision
		want Action
	}{
		{"abort beats serialize", Decision{Action: ActionAbort}, Decision{Action: ActionSerialize}, ActionAbort},
		{"serialize beats reduce", Decision{Action: ActionReduce, Delta: 5}, Decision{Action: ActionSerialize}, ActionSerialize},
		{"reduce beats none", Decision{Action: ActionNone}, Decision{Action: ActionReduce, Delta: 1}, ActionReduce},
		{"equal rank keeps larger delta", Decision{Action: ActionReduce, Delta: 1}, Decision{Action: ActionReduce, Delta: 3}, ActionReduce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.a, tt.b)
			if got.Action != tt.want {
				t.Errorf("Resolve = %+v, want action %v", got, tt.want)
			}
			// Symmetric.
			if rev := Resolve(tt.b, tt.a); rev.Action != tt.want {
				t.Errorf("Resolve reversed = %+v, want action %v", rev, tt.want)
			}
		})
	}
}

func TestResolve_EqualReduceDelta(t *testing.T) {
	a := Decision{Action: ActionReduce, Delta: 2, Rule: "a"}
	b := Decision{Action: ActionReduce, Delta: 3, Rule: "b"}
	if got := Resolve(a, b); got.Rule != "b" {
		t.Errorf("larger reduction should win, got %+v", got)
	}
}

func TestEngine_SerializeCarriesDelayFromRule(t *testing.T) {
	e := NewEngine(WithRules([]Rule{
		{ID: "backoff", Trigger: SignalTaskFailure, Action: ActionSerialize, Delay: 2 * time.Second},
	}))
	e.BeginPhase(4)

	d := e.Evaluate(Signal{Kind: SignalTaskFailure})
	if d.Action != ActionSerialize || d.Delay != 2*time.Second {
		t.Errorf("expected serialize with 2s delay, got %+v", d)
	}
}
