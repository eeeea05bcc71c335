package integration

import (
	"context"
	"sync"
	"testing"
)

var (
	suiteOnce sync.Once
	suiteDB   *TestDB
	suiteErr  error
)

// setupSuite starts the shared postgres container on first use and
// truncates all tables for the calling test.
func setupSuite(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suiteOnce.Do(func() {
		suiteDB, suiteErr = SetupTestDatabase(context.Background())
	})
	if suiteErr != nil {
		t.Fatalf("failed to set up test database: %v", suiteErr)
	}

	if err := suiteDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("failed to clean up tables: %v", err)
	}

	return suiteDB
}
