package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/phofmann/floodgate/internal/database"
)

// EmergencyCodeRepository handles database operations for single-use backup codes
type EmergencyCodeRepository struct {
	db *database.DB
}

// NewEmergencyCodeRepository creates a new EmergencyCodeRepository
func NewEmergencyCodeRepository(db *database.DB) *EmergencyCodeRepository {
	return &EmergencyCodeRepository{db: db}
}

// ReplaceBatch atomically swaps the account's outstanding codes for a new
// batch. A partial replace would leave a mix of old and new codes, so both
// steps run in one transaction.
func (r *EmergencyCodeRepository) ReplaceBatch(ctx context.Context, accountID string, hashes []string) error {
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM emergency_codes WHERE account_id = $1`, accountID); err != nil {
			return err
		}

		now := time.Now()
		for _, hash := range hashes {
			_, err := tx.Exec(ctx,
				`INSERT INTO emergency_codes (account_id, code_hash, created_at) VALUES ($1, $2, $3)`,
				accountID, hash, now,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace emergency codes: %w", database.MapPostgresError(err))
	}

	return nil
}

// ListHashes returns all outstanding code hashes for an account. An empty
// slice is a valid result, not an error.
func (r *EmergencyCodeRepository) ListHashes(ctx context.Context, accountID string) ([]string, error) {
	query := `SELECT code_hash FROM emergency_codes WHERE account_id = $1 ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency codes: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	hashes := make([]string, 0)
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("failed to scan emergency code: %w", database.MapPostgresError(err))
		}
		hashes = append(hashes, hash)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emergency codes: %w", database.MapPostgresError(err))
	}

	return hashes, nil
}

// DeleteByHash removes exactly the matched code and reports how many rows
// went away. Keying the delete by the hash itself means two requests racing
// to consume the same code cannot both observe a successful delete.
func (r *EmergencyCodeRepository) DeleteByHash(ctx context.Context, accountID, hash string) (int64, error) {
	query := `DELETE FROM emergency_codes WHERE account_id = $1 AND code_hash = $2`

	result, err := r.db.Pool.Exec(ctx, query, accountID, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to delete emergency code: %w", database.MapPostgresError(err))
	}

	return result.RowsAffected(), nil
}

// DeleteAll removes every outstanding code for an account
func (r *EmergencyCodeRepository) DeleteAll(ctx context.Context, accountID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM emergency_codes WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete emergency codes: %w", database.MapPostgresError(err))
	}

	return nil
}
