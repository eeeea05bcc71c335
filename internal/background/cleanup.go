package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/phofmann/floodgate/internal/services"
)

// CleanupManager periodically sweeps flood events that have aged past
// their rule's cleanup window. The sweep is decoupled from request
// handling; Check only ever consults the flood window, so an overdue
// sweep can leave stale rows behind without affecting limiter decisions.
type CleanupManager struct {
	flood    *services.FloodService
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(flood *services.FloodService, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		flood:    flood,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup sweeps every registered action type once
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var total int64
	for _, actionType := range cm.flood.ActionTypes() {
		deleted, err := cm.flood.Cleanup(cleanupCtx, actionType)
		if err != nil {
			// One failed action type should not stall the rest
			continue
		}
		total += deleted
	}

	if total > 0 {
		cm.logger.Info("flood event cleanup completed", slog.Int64("rows_deleted", total))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
