package planstore

import (
	"context"
	"testing"

	"github.com/webllm/renderify/internal/runtimeplan"
)

func TestMemoryStore_SaveThenLoadRoundTrip(t *testing.T) {
	store := NewMemoryStore(8, 60)
	snap := runtimeplan.StateSnapshot{
		PlanID: "plan-1",
		State:  map[string]any{"n1": map[string]any{"count": 3}},
	}
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := store.Load(context.Background(), "plan-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot present")
	}
	n1, _ := got.State["n1"].(map[string]any)
	if n1["count"] != 3 {
		t.Fatalf("unexpected state: %v", got.State)
	}
}

func TestMemoryStore_LoadMissingReturnsFalse(t *testing.T) {
	store := NewMemoryStore(8, 60)
	_, ok, err := store.Load(context.Background(), "no-such-plan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing plan")
	}
}

func TestMemoryStore_SaveRejectsEmptyPlanID(t *testing.T) {
	store := NewMemoryStore(8, 60)
	if err := store.Save(context.Background(), runtimeplan.StateSnapshot{}); err == nil {
		t.Fatalf("expected error for empty PlanID")
	}
}
