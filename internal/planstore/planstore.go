// Package planstore persists RuntimePlan state snapshots: an in-memory
// LRU+TTL tier for the common case, with an optional Postgres-backed tier
// for durability across process restarts.
package planstore

import (
	"context"
	"fmt"
	"time"

	"github.com/webllm/renderify/internal/cachex"
	"github.com/webllm/renderify/internal/runtimeplan"
)

// Store is the collaborator internal/executor.Runtime.Store expects.
type Store interface {
	Load(ctx context.Context, planID string) (runtimeplan.StateSnapshot, bool, error)
	Save(ctx context.Context, snapshot runtimeplan.StateSnapshot) error
}

// MemoryStore is an LRU+TTL-bounded in-memory Store, grounded on
// internal/cachex.LRUTTL (itself grounded on InsightifyCore's
// internal/cache/memory/lru_ttl.go) rather than the unbounded
// map+sync.Mutex InsightifyCore's projectstore.Store uses for its file-backed
// tier: a long-lived renderify process executing many distinct plans
// should not retain every snapshot forever.
type MemoryStore struct {
	cache *cachex.LRUTTL[string, runtimeplan.StateSnapshot]
}

// NewMemoryStore creates a MemoryStore bounded to maxPlans entries, each
// snapshot expiring after ttl.
func NewMemoryStore(maxPlans int, ttlSeconds int) *MemoryStore {
	if ttlSeconds <= 0 {
		ttlSeconds = 3600
	}
	return &MemoryStore{
		cache: cachex.NewLRUTTL[string, runtimeplan.StateSnapshot](maxPlans, 0, time.Duration(ttlSeconds)*time.Second),
	}
}

func (s *MemoryStore) Load(_ context.Context, planID string) (runtimeplan.StateSnapshot, bool, error) {
	snap, ok := s.cache.Get(planID)
	return snap, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, snapshot runtimeplan.StateSnapshot) error {
	if snapshot.PlanID == "" {
		return fmt.Errorf("planstore: snapshot has no PlanID")
	}
	s.cache.Set(snapshot.PlanID, snapshot, 1)
	return nil
}
