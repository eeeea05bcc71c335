package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phofmann/floodgate/internal/database"
	"github.com/phofmann/floodgate/internal/models"
)

// rowScanner abstracts pgx.Row / pgx.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

// AccountRepository handles database operations for admin and customer accounts
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	acc := &models.Account{}
	err := scanner.Scan(
		&acc.ID,
		&acc.Type,
		&acc.Username,
		&acc.Email,
		&acc.TOTPSecret,
		&acc.TOTPEnabled,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return acc, nil
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, acc *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (id, account_type, username, email, totp_secret, totp_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, account_type, username, email, totp_secret, totp_enabled, created_at, updated_at
	`

	id := acc.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()

	created, err := scanAccountRow(r.db.Pool.QueryRow(ctx, query,
		id,
		acc.Type,
		acc.Username,
		acc.Email,
		acc.TOTPSecret,
		acc.TOTPEnabled,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return created, nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, account_type, username, email, totp_secret, totp_enabled, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByUsername retrieves an account by login name within one account type.
// Admin and customer stores are distinct namespaces.
func (r *AccountRepository) GetByUsername(ctx context.Context, accountType models.AccountType, username string) (*models.Account, error) {
	query := `
		SELECT id, account_type, username, email, totp_secret, totp_enabled, created_at, updated_at
		FROM accounts
		WHERE account_type = $1 AND username = $2
	`

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, accountType, username))
}

// SetSecret stores a freshly provisioned secret and resets the enabled
// flag. Regenerating invalidates any QR code issued for a prior secret.
func (r *AccountRepository) SetSecret(ctx context.Context, id, secret string) error {
	query := `
		UPDATE accounts
		SET totp_secret = $1, totp_enabled = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`

	result, err := r.db.Pool.Exec(ctx, query, secret, id)
	if err != nil {
		return fmt.Errorf("failed to set totp secret: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetEnabled flips the two-factor flag. Disabling also clears the stored
// secret so a later enrollment starts from NotEnrolled.
func (r *AccountRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	var query string
	if enabled {
		query = `
			UPDATE accounts
			SET totp_enabled = TRUE, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND totp_secret <> ''
		`
	} else {
		query = `
			UPDATE accounts
			SET totp_enabled = FALSE, totp_secret = '', updated_at = CURRENT_TIMESTAMP
			WHERE id = $1
		`
	}

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update totp flag: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
