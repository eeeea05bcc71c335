package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/phofmann/floodgate/internal/database"
	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/repositories"
	"github.com/phofmann/floodgate/migrations"
	"github.com/phofmann/floodgate/pkg/auth"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("floodgate"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbWrapper := &database.DB{
		Pool: pool,
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         dbWrapper,
	}, nil
}

// runMigrations executes all goose migrations from the embedded set
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	// Goose needs a stdlib DB connection
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"emergency_codes",
		"flood_events",
		"accounts",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from the database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.FloodEventRepository,
	*repositories.AccountRepository,
	*repositories.EmergencyCodeRepository,
) {
	return repositories.NewFloodEventRepository(db),
		repositories.NewAccountRepository(db),
		repositories.NewEmergencyCodeRepository(db)
}

// SeedAccount creates a test account through the repository, optionally
// with a provisioned or confirmed TOTP secret.
func SeedAccount(ctx context.Context, db *database.DB, accountType models.AccountType, username, email, secret string, enabled bool) (*models.Account, error) {
	repo := repositories.NewAccountRepository(db)
	return repo.Create(ctx, &models.Account{
		Type:        accountType,
		Username:    username,
		Email:       email,
		TOTPSecret:  secret,
		TOTPEnabled: enabled,
	})
}

// SeedFloodEvent inserts a flood event with an explicit age
func SeedFloodEvent(ctx context.Context, pool *pgxpool.Pool, ip, actionType string, referenceKey int64, age time.Duration) error {
	query := `
		INSERT INTO flood_events (id, ip, action_type, reference_key, created_at)
		VALUES ($1, $2, $3, $4, NOW() - $5::interval)
	`

	interval := fmt.Sprintf("%d seconds", int(age.Seconds()))
	if _, err := pool.Exec(ctx, query, uuid.NewString(), ip, actionType, referenceKey, interval); err != nil {
		return fmt.Errorf("failed to insert flood event: %w", err)
	}

	return nil
}

// SeedEmergencyCode inserts a bcrypt-hashed emergency code for an account
// and returns the plaintext.
func SeedEmergencyCode(ctx context.Context, pool *pgxpool.Pool, accountID, code string) (string, error) {
	hash, err := auth.HashCode(code)
	if err != nil {
		return "", fmt.Errorf("failed to hash emergency code: %w", err)
	}

	query := `
		INSERT INTO emergency_codes (account_id, code_hash, created_at)
		VALUES ($1, $2, NOW())
	`

	if _, err := pool.Exec(ctx, query, accountID, hash); err != nil {
		return "", fmt.Errorf("failed to insert emergency code: %w", err)
	}

	return code, nil
}
