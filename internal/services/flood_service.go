package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/phofmann/floodgate/internal/models"
)

// FloodEventRepository defines the interface for flood event store operations
type FloodEventRepository interface {
	CountEvents(ctx context.Context, ip, actionType string, referenceKey int64, since time.Time) (int, error)
	InsertEvent(ctx context.Context, event *models.FloodEvent) error
	DeleteOlderThan(ctx context.Context, actionType string, cutoff time.Time) (int64, error)
}

// FloodService decides, per (ip, actionType[, referenceKey]) tuple, whether
// a guarded action may proceed, and records attempts that did.
//
// Check followed by Persist is deliberately not atomic: two concurrent
// requests from one IP can both pass Check before either persists. The
// transient over-admission is bounded by the degree of concurrency and
// accepted for the stateless count-rows design.
type FloodService struct {
	repo   FloodEventRepository
	rules  map[string]models.FloodRule
	logger *slog.Logger
}

// NewFloodService creates a FloodService. Every rule must be internally
// consistent; in particular cleanup windows may not undercut flood windows.
func NewFloodService(repo FloodEventRepository, rules map[string]models.FloodRule, logger *slog.Logger) (*FloodService, error) {
	for actionType, rule := range rules {
		if !rule.Valid() {
			return nil, models.ErrInvalidArgument
		}
		if rule.ActionType != actionType {
			return nil, models.ErrInvalidArgument
		}
	}

	return &FloodService{
		repo:   repo,
		rules:  rules,
		logger: logger,
	}, nil
}

// ruleFor resolves the limiter variant for an action type, falling back
// to the generic rule for unregistered types.
func (s *FloodService) ruleFor(actionType string) models.FloodRule {
	if rule, ok := s.rules[actionType]; ok {
		return rule
	}

	s.logger.Warn("no flood rule for action type, using generic rule",
		slog.String("action_type", actionType))

	rule := s.rules[models.FloodActionGeneric]
	rule.ActionType = actionType
	return rule
}

// ActionTypes returns the registered action types, for the cleanup sweep
func (s *FloodService) ActionTypes() []string {
	types := make([]string, 0, len(s.rules))
	for actionType := range s.rules {
		types = append(types, actionType)
	}
	return types
}

// Check reports whether a new attempt is currently admissible. It never
// mutates state. Store failures deny: this guards abuse-prone endpoints,
// so an unreachable store must not fail open.
func (s *FloodService) Check(ctx context.Context, ip, actionType string, referenceKey int64) bool {
	rule := s.ruleFor(actionType)
	since := time.Now().Add(-rule.FloodWindow)

	count, err := s.repo.CountEvents(ctx, ip, actionType, referenceKey, since)
	if err != nil {
		s.logger.Error("flood check failed, denying",
			slog.String("ip", ip),
			slog.String("action_type", actionType),
			slog.Any("error", err))
		return false
	}

	allowed := rule.Allows(count)
	if !allowed {
		s.logger.Warn("flood limit reached",
			slog.String("ip", ip),
			slog.String("action_type", actionType),
			slog.Int64("reference_key", referenceKey),
			slog.Int("count", count),
			slog.Int("limit", rule.Limit))
	}

	return allowed
}

// Persist records a successful attempt
func (s *FloodService) Persist(ctx context.Context, ip, actionType string, referenceKey int64) error {
	event := &models.FloodEvent{
		IP:           ip,
		ActionType:   actionType,
		ReferenceKey: referenceKey,
		CreatedAt:    time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, event); err != nil {
		s.logger.Error("failed to persist flood event",
			slog.String("ip", ip),
			slog.String("action_type", actionType),
			slog.Any("error", err))
		return err
	}

	return nil
}

// Cleanup removes events of an action type older than the rule's cleanup
// window. It runs on a schedule, decoupled from request handling, and is
// safe alongside concurrent Check and Persist calls.
func (s *FloodService) Cleanup(ctx context.Context, actionType string) (int64, error) {
	rule := s.ruleFor(actionType)
	cutoff := time.Now().Add(-rule.CleanupWindow)

	deleted, err := s.repo.DeleteOlderThan(ctx, actionType, cutoff)
	if err != nil {
		s.logger.Error("flood cleanup failed",
			slog.String("action_type", actionType),
			slog.Any("error", err))
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info("flood events cleaned up",
			slog.String("action_type", actionType),
			slog.Int64("deleted", deleted))
	}

	return deleted, nil
}
