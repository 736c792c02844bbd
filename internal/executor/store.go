package executor

import (
	"context"
	"sync"

	"github.com/webllm/renderify/internal/runtimeplan"
)

// Store persists a plan's StateSnapshot between executions. Execute
// consults it for step 3's "persisted(planId)" fallback and writes back the
// new snapshot at the end of every successful run.
type Store interface {
	Load(ctx context.Context, planID string) (runtimeplan.StateSnapshot, bool, error)
	Save(ctx context.Context, snapshot runtimeplan.StateSnapshot) error
}

// MemoryStore is the default in-process Store, grounded on the same
// read/apply/persist snapshot cycle as InsightifyCore's event-driven node
// state (internal/gateway/service/uievent feeding internal/ui state), here
// keyed at plan granularity instead of per-node.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]runtimeplan.StateSnapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]runtimeplan.StateSnapshot{}}
}

func (s *MemoryStore) Load(_ context.Context, planID string) (runtimeplan.StateSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.data[planID]
	return snap, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, snapshot runtimeplan.StateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snapshot.PlanID] = snapshot
	return nil
}
