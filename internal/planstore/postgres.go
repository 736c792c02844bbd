package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	// pgx registers itself as a database/sql driver named "pgx", the same
	// indirection InsightifyCore uses in internal/gateway/app/app.go and
	// internal/gateway/projectstore/store.go (sql.Open("pgx", dsn)).
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/webllm/renderify/internal/runtimeplan"
)

// PostgresStore is the durable tier: every snapshot is upserted as a JSON
// blob keyed by plan ID, grounded on InsightifyCore's
// internal/gateway/repository/projectstore postgres_backend.go
// (CREATE TABLE IF NOT EXISTS ... / INSERT ... ON CONFLICT DO UPDATE
// schema-once pattern), generalized from a fixed-column project_states
// table to a single JSONB payload column since a StateSnapshot's shape is
// open-ended per plan rather than a fixed entity.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

// OpenPostgresStore opens dsn via the pgx stdlib driver.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("planstore: opening postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ensureSchema() error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS plan_state_snapshots (
  plan_id TEXT PRIMARY KEY,
  taken_at TIMESTAMP WITH TIME ZONE NOT NULL,
  state JSONB NOT NULL
);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Load(ctx context.Context, planID string) (runtimeplan.StateSnapshot, bool, error) {
	if err := s.ensureSchema(); err != nil {
		return runtimeplan.StateSnapshot{}, false, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT taken_at, state FROM plan_state_snapshots WHERE plan_id = $1`, planID)

	var takenAt time.Time
	var raw []byte
	if err := row.Scan(&takenAt, &raw); err != nil {
		if err == sql.ErrNoRows {
			return runtimeplan.StateSnapshot{}, false, nil
		}
		return runtimeplan.StateSnapshot{}, false, fmt.Errorf("planstore: load: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return runtimeplan.StateSnapshot{}, false, fmt.Errorf("planstore: decoding state: %w", err)
	}
	return runtimeplan.StateSnapshot{
		PlanID:  planID,
		TakenAt: takenAt,
		State:   state,
	}, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, snapshot runtimeplan.StateSnapshot) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	if snapshot.PlanID == "" {
		return fmt.Errorf("planstore: snapshot has no PlanID")
	}
	raw, err := json.Marshal(snapshot.State)
	if err != nil {
		return fmt.Errorf("planstore: encoding state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO plan_state_snapshots (plan_id, taken_at, state)
VALUES ($1, $2, $3)
ON CONFLICT (plan_id)
DO UPDATE SET taken_at = EXCLUDED.taken_at, state = EXCLUDED.state`,
		snapshot.PlanID, snapshot.TakenAt, raw)
	if err != nil {
		return fmt.Errorf("planstore: save: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
