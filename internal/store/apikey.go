package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/textgate/textgate/internal/model"
)

// CreateAPIKey inserts a new API key record. The key_hash must already be
// set. The ID and CreatedAt fields are populated after insert, and the
// window reset stamps are initialized to the creation time.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	now := time.Now().UTC()
	key.CreatedAt = now
	key.LastResetHour = now
	key.LastResetDay = now
	key.LastResetMonth = now

	const q = `INSERT INTO api_keys
		(key_id, key_hash, name, user_id, role, is_active,
		 rate_limit_per_hour, rate_limit_per_day, rate_limit_per_month,
		 usage_count_hour, usage_count_day, usage_count_month, total_usage,
		 last_reset_hour, last_reset_day, last_reset_month,
		 expires_at, created_at, last_used_at)
		VALUES
		(:key_id, :key_hash, :name, :user_id, :role, :is_active,
		 :rate_limit_per_hour, :rate_limit_per_day, :rate_limit_per_month,
		 :usage_count_hour, :usage_count_day, :usage_count_month, :total_usage,
		 :last_reset_hour, :last_reset_day, :last_reset_month,
		 :expires_at, :created_at, :last_used_at)`

	id, err := s.namedInsert(ctx, q, key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKey returns an API key by its row ID.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.rebind("SELECT * FROM api_keys WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// GetAPIKeyByKeyID returns an API key by its public key_id.
func (s *Store) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.rebind("SELECT * FROM api_keys WHERE key_id = ?"), keyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by key id: %w", err)
	}
	return &key, nil
}

// ListAPIKeysByUser returns all API keys owned by a user, newest first.
func (s *Store) ListAPIKeysByUser(ctx context.Context, userID int64) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.SelectContext(ctx, &keys,
		s.rebind("SELECT * FROM api_keys WHERE user_id = ? ORDER BY created_at DESC, id DESC"), userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// UpdateAPIKey updates an API key's mutable fields: name, limits, active
// flag, and expiry. Usage counters are only touched by ConsumeQuota.
func (s *Store) UpdateAPIKey(ctx context.Context, key *model.APIKey) error {
	const q = `UPDATE api_keys SET
		name = :name, is_active = :is_active,
		rate_limit_per_hour = :rate_limit_per_hour,
		rate_limit_per_day = :rate_limit_per_day,
		rate_limit_per_month = :rate_limit_per_month,
		expires_at = :expires_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, key)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAPIKey removes an API key by ID. Usage logs that reference it keep
// their user attribution; the api_key_id column is set NULL by the foreign
// key constraint.
func (s *Store) DeleteAPIKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAPIKeys returns the total number of API keys.
func (s *Store) CountAPIKeys(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM api_keys"); err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return count, nil
}

// ConsumeQuota atomically charges one request against an API key's usage
// windows. It is the only code path that reads or writes the counters:
// window rollover, the limit check, and the increment all happen inside a
// single transaction against one captured timestamp.
//
// Windows roll over lazily. The hour window resets when the hour of day or
// the calendar date changes; the day window on a date change; the month
// window when the (year, month) pair changes. All comparisons use UTC.
//
// When a window is exhausted, a *QuotaError naming the window is returned
// and nothing is written. Windows are checked hour, day, month, in that
// order. On success the updated key is returned with last_used_at stamped.
func (s *Store) ConsumeQuota(ctx context.Context, keyID string, now time.Time) (*model.APIKey, error) {
	now = now.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := "SELECT * FROM api_keys WHERE key_id = ?"
	if s.driver != "sqlite" {
		q += " FOR UPDATE"
	}

	var key model.APIKey
	if err := tx.GetContext(ctx, &key, s.rebind(q), keyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key for quota: %w", err)
	}

	hour, day, month := key.UsageCountHour, key.UsageCountDay, key.UsageCountMonth
	if hourRolled(key.LastResetHour.UTC(), now) {
		hour = 0
		key.LastResetHour = now
	}
	if dayRolled(key.LastResetDay.UTC(), now) {
		day = 0
		key.LastResetDay = now
	}
	if monthRolled(key.LastResetMonth.UTC(), now) {
		month = 0
		key.LastResetMonth = now
	}

	switch {
	case hour >= key.RateLimitPerHour:
		return nil, &QuotaError{Window: "hour", Limit: key.RateLimitPerHour}
	case day >= key.RateLimitPerDay:
		return nil, &QuotaError{Window: "day", Limit: key.RateLimitPerDay}
	case month >= key.RateLimitPerMonth:
		return nil, &QuotaError{Window: "month", Limit: key.RateLimitPerMonth}
	}

	key.UsageCountHour = hour + 1
	key.UsageCountDay = day + 1
	key.UsageCountMonth = month + 1
	key.TotalUsage++
	key.LastUsedAt = &now

	const update = `UPDATE api_keys SET
		usage_count_hour = :usage_count_hour,
		usage_count_day = :usage_count_day,
		usage_count_month = :usage_count_month,
		total_usage = :total_usage,
		last_reset_hour = :last_reset_hour,
		last_reset_day = :last_reset_day,
		last_reset_month = :last_reset_month,
		last_used_at = :last_used_at
		WHERE id = :id`

	if _, err := tx.NamedExecContext(ctx, update, &key); err != nil {
		return nil, fmt.Errorf("charge quota: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit quota: %w", err)
	}
	return &key, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func hourRolled(last, now time.Time) bool {
	return now.Hour() != last.Hour() || !sameDate(last, now)
}

func dayRolled(last, now time.Time) bool {
	return !sameDate(last, now)
}

func monthRolled(last, now time.Time) bool {
	return last.Year() != now.Year() || last.Month() != now.Month()
}
