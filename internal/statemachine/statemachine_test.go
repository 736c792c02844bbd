package statemachine

import (
	"testing"

	"github.com/webllm/renderify/internal/runtimeplan"
)

func TestMachine_SeedInitialDeepMergesOntoEmptyState(t *testing.T) {
	m := New("plan-1", nil)
	m.SeedInitial(map[string]any{"count": 0, "nested": map[string]any{"a": 1}})
	got := m.Get()
	if got["count"] != 0 {
		t.Fatalf("expected seeded count, got %v", got)
	}
	nested, _ := got["nested"].(map[string]any)
	if nested["a"] != 1 {
		t.Fatalf("expected seeded nested value, got %v", got)
	}
}

func TestMachine_SeedInitialNeverOverwritesExistingKeys(t *testing.T) {
	seed := &runtimeplan.StateSnapshot{PlanID: "plan-1", State: map[string]any{"count": 5}}
	m := New("plan-1", seed)
	m.SeedInitial(map[string]any{"count": 0})
	if m.Get()["count"] != 5 {
		t.Fatalf("expected persisted value preserved, got %v", m.Get())
	}
}

func TestMachine_ApplySetWritesLiteralValue(t *testing.T) {
	m := New("plan-1", nil)
	plan := &runtimeplan.PlanState{
		Transitions: map[string]runtimeplan.Transition{
			"increment": {Actions: []runtimeplan.Action{
				{Verb: "set", Path: "count", Value: float64(1)},
			}},
		},
	}
	applied, err := m.Apply(plan, Event{Type: "increment"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 1 || applied[0].Value != float64(1) {
		t.Fatalf("unexpected applied actions: %+v", applied)
	}
	if m.Get()["count"] != float64(1) {
		t.Fatalf("expected count set, got %v", m.Get())
	}
}

func TestMachine_ApplyIncrementAddsToExisting(t *testing.T) {
	m := New("plan-1", nil)
	m.SeedInitial(map[string]any{"count": float64(2)})
	plan := &runtimeplan.PlanState{
		Transitions: map[string]runtimeplan.Transition{
			"bump": {Actions: []runtimeplan.Action{
				{Verb: "increment", Path: "count", By: float64(3)},
			}},
		},
	}
	if _, err := m.Apply(plan, Event{Type: "bump"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Get()["count"] != float64(5) {
		t.Fatalf("expected incremented count, got %v", m.Get())
	}
}

func TestMachine_ApplyResolvesFromEventReference(t *testing.T) {
	m := New("plan-1", nil)
	plan := &runtimeplan.PlanState{
		Transitions: map[string]runtimeplan.Transition{
			"rename": {Actions: []runtimeplan.Action{
				{Verb: "set", Path: "name", Value: map[string]any{"$from": "event.name"}},
			}},
		},
	}
	_, err := m.Apply(plan, Event{Type: "rename", Payload: map[string]any{"name": "ada"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Get()["name"] != "ada" {
		t.Fatalf("expected name resolved from event, got %v", m.Get())
	}
}

func TestMachine_ApplyUnknownEventTypeIsNoop(t *testing.T) {
	m := New("plan-1", nil)
	plan := &runtimeplan.PlanState{Transitions: map[string]runtimeplan.Transition{}}
	applied, err := m.Apply(plan, Event{Type: "nothing-registered"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no actions applied, got %+v", applied)
	}
}

func TestMachine_SnapshotIsImmutableAgainstFurtherMutation(t *testing.T) {
	m := New("plan-1", nil)
	m.SeedInitial(map[string]any{"count": float64(1)})
	snap := m.Snapshot()
	plan := &runtimeplan.PlanState{
		Transitions: map[string]runtimeplan.Transition{
			"bump": {Actions: []runtimeplan.Action{{Verb: "increment", Path: "count", By: float64(1)}}},
		},
	}
	if _, err := m.Apply(plan, Event{Type: "bump"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State["count"] != float64(1) {
		t.Fatalf("expected snapshot unaffected by later mutation, got %v", snap.State["count"])
	}
}

func TestMachine_SnapshotAndSeedRoundTrip(t *testing.T) {
	m := New("plan-1", nil)
	m.SeedInitial(map[string]any{"model": "gpt-test"})
	snap := m.Snapshot()
	if snap.PlanID != "plan-1" {
		t.Fatalf("unexpected plan id: %q", snap.PlanID)
	}

	restored := New("plan-1", &snap)
	if restored.Get()["model"] != "gpt-test" {
		t.Fatalf("expected restored state, got %v", restored.Get())
	}
}
