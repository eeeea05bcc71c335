package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockFloodEventRepository implements FloodEventRepository for testing
type MockFloodEventRepository struct {
	events    []models.FloodEvent
	countErr  error
	insertErr error
}

func NewMockFloodEventRepository() *MockFloodEventRepository {
	return &MockFloodEventRepository{}
}

func (m *MockFloodEventRepository) CountEvents(ctx context.Context, ip, actionType string, referenceKey int64, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}

	count := 0
	for _, event := range m.events {
		if event.IP == ip && event.ActionType == actionType && event.ReferenceKey == referenceKey && event.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockFloodEventRepository) InsertEvent(ctx context.Context, event *models.FloodEvent) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.events = append(m.events, *event)
	return nil
}

func (m *MockFloodEventRepository) DeleteOlderThan(ctx context.Context, actionType string, cutoff time.Time) (int64, error) {
	var kept []models.FloodEvent
	var deleted int64
	for _, event := range m.events {
		if event.ActionType == actionType && event.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	m.events = kept
	return deleted, nil
}

// backdate shifts the newest n events into the past for window tests
func (m *MockFloodEventRepository) backdate(n int, age time.Duration) {
	for i := len(m.events) - n; i < len(m.events); i++ {
		m.events[i].CreatedAt = time.Now().Add(-age)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newFloodService(t *testing.T, repo services.FloodEventRepository) *services.FloodService {
	t.Helper()
	service, err := services.NewFloodService(repo, models.DefaultFloodRules(), testLogger())
	require.NoError(t, err)
	return service
}

func TestNewFloodService_RejectsInvalidRule(t *testing.T) {
	rules := map[string]models.FloodRule{
		"broken": {
			ActionType:    "broken",
			Limit:         3,
			FloodWindow:   10 * time.Minute,
			CleanupWindow: 5 * time.Minute, // cleanup must not undercut the flood window
		},
	}

	_, err := services.NewFloodService(NewMockFloodEventRepository(), rules, testLogger())
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestNewFloodService_RejectsMismatchedKey(t *testing.T) {
	rules := map[string]models.FloodRule{
		"upload": {
			ActionType:    "download",
			Limit:         3,
			FloodWindow:   5 * time.Minute,
			CleanupWindow: 60 * time.Minute,
		},
	}

	_, err := services.NewFloodService(NewMockFloodEventRepository(), rules, testLogger())
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestFloodService_Check_AllowsUnderLimit(t *testing.T) {
	repo := NewMockFloodEventRepository()
	service := newFloodService(t, repo)
	ctx := context.Background()

	assert.True(t, service.Check(ctx, "192.0.2.1", models.FloodActionGeneric, 0))

	require.NoError(t, service.Persist(ctx, "192.0.2.1", models.FloodActionGeneric, 0))
	require.NoError(t, service.Persist(ctx, "192.0.2.1", models.FloodActionGeneric, 0))

	assert.True(t, service.Check(ctx, "192.0.2.1", models.FloodActionGeneric, 0))
}

func TestFloodService_Check_BlocksAtLimit(t *testing.T) {
	repo := NewMockFloodEventRepository()
	service := newFloodService(t, repo)
	ctx := context.Background()

	// Generic rule: limit 3, strict comparison
	for i := 0; i < 3; i++ {
		require.NoError(t, service.Persist(ctx, "192.0.2.1", models.FloodActionGeneric, 0))
	}

	assert.False(t, service.Check(ctx, "192.0.2.1", models.FloodActionGeneric, 0))
}

func TestFloodService_Check_PasswordResetAllowsOneExtra(t *testing.T) {
	repo := NewMockFloodEventRepository()
	service := newFloodService(t, repo)
	ctx := context.Background()

	// Password reset uses the inclusive comparison: limit persists still pass
	for i := 0; i < 3; i++ {
		require.NoError(t, service.Persist(ctx, "192.0.2.1", models.FloodActionPasswordReset, 0))
	}
	assert.True(t, service.Check(ctx, "192.0.2.1", models.FloodActionPasswordReset, 0))

	require.NoError(t, service.Persist(ctx, "192.0.2.1", models.FloodActionPasswordReset, 0))
	assert.False(t, service.Check(ctx, "192.0.2.1", models.FloodActionPasswordReset, 0))
}

// Full walk of the forgot-password scenario: three requests within five
// minutes, a fourth still admitted by the inclusive policy, a fifth denied.
func TestFloodService_PasswordResetScenario(t *testing.T) {
	repo := NewMockFloodEventRepository()
	service := newFloodService(t, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, service.Check(ctx, "1.2.3.4", models.FloodActionPasswordReset, 0))
		require.NoError(t, service.Persist(ctx, "1.2.3.4", models.FloodActionPasswordReset, 0))
	}
	repo.backdate(3, 4*time.Minute) // still inside the 5-minute window

	assert.True(t, service.Check(ctx, "1.2.3.4", models.FloodActionPasswordReset, 0))
	require.NoError(t, service.Persist(ctx, "1.2.3.4", models.FloodActionPasswordReset, 0))

	assert.False(t, service.Check(ctx, "1.2.3.4", models.FloodActionPasswordReset, 0))
}

func TestFloodService_Check_WindowExpiry(t *testing.T) {
	repo := NewMockFloodEventRepository()
	service := newFloodService(t, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, service.Persist(ctx, "192.0.2.1", models.FloodActionGeneric, 0))
	}
	assert.False(t, service.Check(ctx, "192.0.2.1", models.FloodActionGeneric, 0))

	// Events older than the 5-minute flood window no longer count
	repo.backdate(3, 6*time.Minute)
	assert.True(t, service.Check(ctx, "192.0.2.1", models.FloodActionGeneric, 0))
}

func TestFloodService_Check_TuplesAreIndependent(t *testing.T) {
	repo := NewMockFloodEventRepository()
	service := newFloodService(t, repo)
	ctx := context.Background()

	require.NoError(t, service.Persist(ctx, "192.0.2.1", models.FloodActionAvailability, 101))
	assert.False(t, service.Check(ctx, "192.0.2.1", models.FloodActionAvailability, 101))

	// A different product, IP or action type is unaffected
	assert.True(t, service.Check(ctx, "192.0.2.1", models.FloodActionAvailability, 102))
	assert.True(t, service.Check(ctx, "192.0.2.2", models.FloodActionAvailability, 101))
	assert.True(t, service.Check(ctx, "192.0.2.1", models.FloodActionGeneric, 0))
}

func TestFloodService_Check_FailsClosedOnStoreError(t *testing.T) {
	repo := NewMockFloodEventRepository()
	repo.countErr = models.ErrStoreUnavailable
	service := newFloodService(t, repo)

	assert.False(t, service.Check(context.Background(), "192.0.2.1", models.FloodActionGeneric, 0))
}

func TestFloodService_Persist_SurfacesStoreError(t *testing.T) {
	repo := NewMockFloodEventRepository()
	repo.insertErr = models.ErrStoreUnavailable
	service := newFloodService(t, repo)

	err := service.Persist(context.Background(), "192.0.2.1", models.FloodActionGeneric, 0)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestFloodService_Check_UnknownActionFallsBackToGeneric(t *testing.T) {
	repo := NewMockFloodEventRepository()
	service := newFloodService(t, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, service.Persist(ctx, "192.0.2.1", "newsletter", 0))
	}

	// Generic limit of 3 applies to unregistered action types
	assert.False(t, service.Check(ctx, "192.0.2.1", "newsletter", 0))
}

func TestFloodService_Cleanup(t *testing.T) {
	repo := NewMockFloodEventRepository()
	service := newFloodService(t, repo)
	ctx := context.Background()

	// Availability rule: cleanup window 3 minutes
	require.NoError(t, service.Persist(ctx, "192.0.2.1", models.FloodActionAvailability, 1))
	require.NoError(t, service.Persist(ctx, "192.0.2.2", models.FloodActionAvailability, 1))
	repo.backdate(1, 4*time.Minute)

	deleted, err := service.Cleanup(ctx, models.FloodActionAvailability)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The recent event survives the sweep
	assert.False(t, service.Check(ctx, "192.0.2.1", models.FloodActionAvailability, 1))
}

func TestFloodService_ActionTypes(t *testing.T) {
	service := newFloodService(t, NewMockFloodEventRepository())

	types := service.ActionTypes()
	assert.ElementsMatch(t, []string{
		models.FloodActionGeneric,
		models.FloodActionPasswordReset,
		models.FloodActionUpload,
		models.FloodActionAvailability,
	}, types)
}
