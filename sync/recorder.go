package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Phase constants a sync operation moves through: started, then
// completed or failed.
const (
	PhaseStarted   = "started"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// StateRecorder persists the latest phase of each database's sync
// operations, for observability dashboards and crash recovery (so a
// caller can tell whether an interrupted sync ever reached completed).
type StateRecorder struct {
	pool *pgxpool.Pool
}

// NewStateRecorder wraps a pool already migrated with the
// sync_operations table this recorder writes to.
func NewStateRecorder(pool *pgxpool.Pool) *StateRecorder {
	return &StateRecorder{pool: pool}
}

// Record upserts the current phase of databaseID's operation. Failures are
// swallowed to a log call by design: recording sync progress must never be
// the reason a push/pull/sync itself fails.
func (s *StateRecorder) Record(ctx context.Context, databaseID, operation, phase string) {
	query := `
		INSERT INTO sync_operations (database_id, operation, phase, started_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (database_id) DO UPDATE
		SET operation = $2, phase = $3, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, databaseID, operation, phase); err != nil {
		fmt.Printf("sync: failed to record %s/%s phase %s: %v\n", databaseID, operation, phase, err)
	}
}

// LatestPhase returns the most recently recorded phase for a database, or
// "" if no sync operation has ever been recorded for it.
func (s *StateRecorder) LatestPhase(ctx context.Context, databaseID string) (string, error) {
	query := `SELECT phase FROM sync_operations WHERE database_id = $1`

	var phase string
	err := s.pool.QueryRow(ctx, query, databaseID).Scan(&phase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get latest sync phase: %w", err)
	}
	return phase, nil
}
