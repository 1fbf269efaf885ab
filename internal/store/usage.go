package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/textgate/textgate/internal/model"
)

// InsertUsageLog appends one usage record. The CreatedAt field is stamped
// if the caller left it zero.
func (s *Store) InsertUsageLog(ctx context.Context, entry *model.UsageLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO usage_logs
		(user_id, api_key_id, endpoint, method, model,
		 prompt_tokens, completion_tokens, total_tokens,
		 latency_ms, status_code, ip_address, user_agent, created_at)
		VALUES
		(:user_id, :api_key_id, :endpoint, :method, :model,
		 :prompt_tokens, :completion_tokens, :total_tokens,
		 :latency_ms, :status_code, :ip_address, :user_agent, :created_at)`

	id, err := s.namedInsert(ctx, q, entry)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	entry.ID = id
	return nil
}

// ListUsageLogs returns a user's usage records within the optional time
// range, newest first, capped at limit.
func (s *Store) ListUsageLogs(ctx context.Context, userID int64, start, end *time.Time, limit int) ([]model.UsageLog, error) {
	q := "SELECT * FROM usage_logs WHERE user_id = ?"
	args := []interface{}{userID}
	if start != nil {
		q += " AND created_at >= ?"
		args = append(args, start.UTC())
	}
	if end != nil {
		q += " AND created_at <= ?"
		args = append(args, end.UTC())
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var logs []model.UsageLog
	if err := s.db.SelectContext(ctx, &logs, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list usage logs: %w", err)
	}
	return logs, nil
}

// CountUsageLogs returns the total number of usage records.
func (s *Store) CountUsageLogs(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM usage_logs"); err != nil {
		return 0, fmt.Errorf("count usage logs: %w", err)
	}
	return count, nil
}

// UserUsageStats reduces a user's usage logs over the optional time range
// to totals, average latency, and per-status / per-endpoint counts.
func (s *Store) UserUsageStats(ctx context.Context, userID int64, start, end *time.Time) (*model.UsageStats, error) {
	where := "WHERE user_id = ?"
	args := []interface{}{userID}
	if start != nil {
		where += " AND created_at >= ?"
		args = append(args, start.UTC())
	}
	if end != nil {
		where += " AND created_at <= ?"
		args = append(args, end.UTC())
	}

	var totals struct {
		Requests int64           `db:"requests"`
		Tokens   int64           `db:"tokens"`
		Latency  sql.NullFloat64 `db:"latency"`
	}
	totalsQ := `SELECT COUNT(*) AS requests,
		COALESCE(SUM(total_tokens), 0) AS tokens,
		AVG(latency_ms) AS latency
		FROM usage_logs ` + where
	if err := s.db.GetContext(ctx, &totals, s.rebind(totalsQ), args...); err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}

	stats := &model.UsageStats{
		TotalRequests:      totals.Requests,
		TotalTokens:        totals.Tokens,
		RequestsByStatus:   make(map[string]int64),
		RequestsByEndpoint: make(map[string]int64),
		PeriodStart:        start,
		PeriodEnd:          end,
	}
	if totals.Latency.Valid {
		stats.AvgLatencyMs = &totals.Latency.Float64
	}

	var byStatus []struct {
		Status int   `db:"status_code"`
		Count  int64 `db:"n"`
	}
	statusQ := `SELECT status_code, COUNT(*) AS n FROM usage_logs ` + where + " GROUP BY status_code"
	if err := s.db.SelectContext(ctx, &byStatus, s.rebind(statusQ), args...); err != nil {
		return nil, fmt.Errorf("usage by status: %w", err)
	}
	for _, row := range byStatus {
		stats.RequestsByStatus[strconv.Itoa(row.Status)] = row.Count
	}

	var byEndpoint []struct {
		Endpoint string `db:"endpoint"`
		Count    int64  `db:"n"`
	}
	endpointQ := `SELECT endpoint, COUNT(*) AS n FROM usage_logs ` + where + " GROUP BY endpoint"
	if err := s.db.SelectContext(ctx, &byEndpoint, s.rebind(endpointQ), args...); err != nil {
		return nil, fmt.Errorf("usage by endpoint: %w", err)
	}
	for _, row := range byEndpoint {
		stats.RequestsByEndpoint[row.Endpoint] = row.Count
	}

	return stats, nil
}
