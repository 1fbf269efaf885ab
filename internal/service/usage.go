package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/store"
)

// UsageService records per-request usage and serves analytics over it.
type UsageService struct {
	store  *store.Store
	logger *slog.Logger
}

func NewUsageService(st *store.Store, logger *slog.Logger) *UsageService {
	return &UsageService{store: st, logger: logger}
}

// Record appends one usage log entry. Recording is best effort: failures
// are logged and swallowed so they can never affect the request outcome.
func (s *UsageService) Record(ctx context.Context, entry *model.UsageLog) {
	if err := s.store.InsertUsageLog(ctx, entry); err != nil {
		s.logger.Error("record usage", "error", err,
			"user_id", entry.UserID, "endpoint", entry.Endpoint)
	}
}

// Stats reduces a user's usage logs over the optional time range.
func (s *UsageService) Stats(ctx context.Context, userID int64, start, end *time.Time) (*model.UsageStats, error) {
	return s.store.UserUsageStats(ctx, userID, start, end)
}

// Recent returns a user's most recent usage logs, capped at limit.
func (s *UsageService) Recent(ctx context.Context, userID int64, limit int) ([]model.UsageLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.ListUsageLogs(ctx, userID, nil, nil, limit)
}
