package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phofmann/floodgate/internal/database"
	"github.com/phofmann/floodgate/internal/models"
)

// FloodEventRepository handles database operations for flood events
type FloodEventRepository struct {
	db *database.DB
}

// NewFloodEventRepository creates a new FloodEventRepository
func NewFloodEventRepository(db *database.DB) *FloodEventRepository {
	return &FloodEventRepository{db: db}
}

// CountEvents returns the number of events for an (ip, actionType,
// referenceKey) tuple created after the given cutoff. Read-only.
func (r *FloodEventRepository) CountEvents(ctx context.Context, ip, actionType string, referenceKey int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM flood_events
		WHERE ip = $1 AND action_type = $2 AND reference_key = $3 AND created_at > $4
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ip, actionType, referenceKey, since).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// InsertEvent records a new flood event. Events are append-only.
func (r *FloodEventRepository) InsertEvent(ctx context.Context, event *models.FloodEvent) error {
	query := `
		INSERT INTO flood_events (id, ip, action_type, reference_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		event.IP,
		event.ActionType,
		event.ReferenceKey,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flood event: %w", database.MapPostgresError(err))
	}

	return nil
}

// DeleteOlderThan removes all events of an action type created before the
// cutoff. Safe to run concurrently with counting and inserting.
func (r *FloodEventRepository) DeleteOlderThan(ctx context.Context, actionType string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM flood_events WHERE action_type = $1 AND created_at < $2`

	result, err := r.db.Pool.Exec(ctx, query, actionType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete flood events: %w", database.MapPostgresError(err))
	}

	return result.RowsAffected(), nil
}
