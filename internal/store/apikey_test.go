package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/textgate/textgate/internal/model"
)

func newTestKey(t *testing.T, s *Store, userID int64, keyID string) *model.APIKey {
	t.Helper()
	key := &model.APIKey{
		KeyID:             keyID,
		KeyHash:           "deadbeef",
		Name:              "test key",
		UserID:            userID,
		Role:              model.RoleUser,
		IsActive:          true,
		RateLimitPerHour:  model.DefaultHourlyLimit,
		RateLimitPerDay:   model.DefaultDailyLimit,
		RateLimitPerMonth: model.DefaultMonthlyLimit,
	}
	if err := s.CreateAPIKey(context.Background(), key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	return key
}

func TestAPIKeyCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, s, "keyowner")
	key := newTestKey(t, s, user.ID, "tgk_test1")

	if key.ID == 0 {
		t.Fatal("expected non-zero ID after create")
	}
	if key.LastResetHour.IsZero() || key.LastResetDay.IsZero() || key.LastResetMonth.IsZero() {
		t.Error("reset stamps not initialized at create")
	}

	got, err := s.GetAPIKeyByKeyID(ctx, "tgk_test1")
	if err != nil {
		t.Fatalf("GetAPIKeyByKeyID: %v", err)
	}
	if got.ID != key.ID || got.UserID != user.ID {
		t.Errorf("lookup returned wrong key: %+v", got)
	}

	list, err := s.ListAPIKeysByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListAPIKeysByUser: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d keys, want 1", len(list))
	}

	key.Name = "renamed"
	key.RateLimitPerHour = 5
	key.IsActive = false
	if err := s.UpdateAPIKey(ctx, key); err != nil {
		t.Fatalf("UpdateAPIKey: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, key.ID)
	if got.Name != "renamed" || got.RateLimitPerHour != 5 || got.IsActive {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := s.DeleteAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if _, err := s.GetAPIKey(ctx, key.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteUserCascadesKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, s, "doomed")
	key := newTestKey(t, s, user.ID, "tgk_doomed")

	if err := s.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetAPIKey(ctx, key.ID); err != ErrNotFound {
		t.Errorf("key should be cascade deleted, got %v", err)
	}
}

func TestConsumeQuota(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := newTestUser(t, s, "consumer")
	key := newTestKey(t, s, user.ID, "tgk_consume")

	got, err := s.ConsumeQuota(ctx, key.KeyID, now)
	if err != nil {
		t.Fatalf("ConsumeQuota: %v", err)
	}
	if got.UsageCountHour != 1 || got.UsageCountDay != 1 || got.UsageCountMonth != 1 {
		t.Errorf("counters = %d/%d/%d, want 1/1/1",
			got.UsageCountHour, got.UsageCountDay, got.UsageCountMonth)
	}
	if got.TotalUsage != 1 {
		t.Errorf("total usage = %d, want 1", got.TotalUsage)
	}
	if got.LastUsedAt == nil {
		t.Error("last_used_at not stamped")
	}

	got, err = s.ConsumeQuota(ctx, key.KeyID, now)
	if err != nil {
		t.Fatalf("ConsumeQuota: %v", err)
	}
	if got.UsageCountHour != 2 || got.TotalUsage != 2 {
		t.Errorf("second consume: hour = %d, total = %d", got.UsageCountHour, got.TotalUsage)
	}
}

func TestConsumeQuotaHourExhausted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := newTestUser(t, s, "limited")
	key := &model.APIKey{
		KeyID:             "tgk_limited",
		KeyHash:           "deadbeef",
		UserID:            user.ID,
		Role:              model.RoleUser,
		IsActive:          true,
		RateLimitPerHour:  2,
		RateLimitPerDay:   model.DefaultDailyLimit,
		RateLimitPerMonth: model.DefaultMonthlyLimit,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := s.ConsumeQuota(ctx, key.KeyID, now); err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
	}

	_, err := s.ConsumeQuota(ctx, key.KeyID, now)
	var qerr *QuotaError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QuotaError, got %v", err)
	}
	if qerr.Window != "hour" || qerr.Limit != 2 {
		t.Errorf("QuotaError = %+v, want hour/2", qerr)
	}

	// The rejected request must not advance any counter.
	got, _ := s.GetAPIKey(ctx, key.ID)
	if got.UsageCountHour != 2 || got.UsageCountDay != 2 || got.TotalUsage != 2 {
		t.Errorf("rejected consume mutated counters: %d/%d total %d",
			got.UsageCountHour, got.UsageCountDay, got.TotalUsage)
	}
}

// A key last charged in the previous hour of the same day rolls only its
// hour window; day and month keep counting.
func TestConsumeQuotaHourRollover(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Pick a time mid-day so stepping back an hour stays on the same date,
	// and mid-month so the month window is unambiguous.
	now := time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC)

	user := newTestUser(t, s, "roller")
	key := newTestKey(t, s, user.ID, "tgk_roll")

	for i := 0; i < 5; i++ {
		if _, err := s.ConsumeQuota(ctx, key.KeyID, now.Add(-time.Hour)); err != nil {
			t.Fatalf("warm up consume: %v", err)
		}
	}

	got, err := s.ConsumeQuota(ctx, key.KeyID, now)
	if err != nil {
		t.Fatalf("ConsumeQuota: %v", err)
	}
	if got.UsageCountHour != 1 {
		t.Errorf("hour counter = %d, want 1 after rollover", got.UsageCountHour)
	}
	if got.UsageCountDay != 6 {
		t.Errorf("day counter = %d, want 6", got.UsageCountDay)
	}
	if got.UsageCountMonth != 6 {
		t.Errorf("month counter = %d, want 6", got.UsageCountMonth)
	}
	if got.TotalUsage != 6 {
		t.Errorf("total usage = %d, want 6", got.TotalUsage)
	}
}

// A key idle for exactly 24 hours lands on the same hour of day; the date
// change must still reset the hour window.
func TestConsumeQuotaHourResetsOnDateChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	yesterday := time.Date(2026, 8, 14, 9, 0, 0, 0, time.UTC)
	today := yesterday.Add(24 * time.Hour)

	user := newTestUser(t, s, "daily")
	key := newTestKey(t, s, user.ID, "tgk_daily")

	for i := 0; i < 3; i++ {
		if _, err := s.ConsumeQuota(ctx, key.KeyID, yesterday); err != nil {
			t.Fatalf("warm up consume: %v", err)
		}
	}

	got, err := s.ConsumeQuota(ctx, key.KeyID, today)
	if err != nil {
		t.Fatalf("ConsumeQuota: %v", err)
	}
	if got.UsageCountHour != 1 {
		t.Errorf("hour counter = %d, want 1 (date changed)", got.UsageCountHour)
	}
	if got.UsageCountDay != 1 {
		t.Errorf("day counter = %d, want 1 (date changed)", got.UsageCountDay)
	}
	if got.UsageCountMonth != 4 {
		t.Errorf("month counter = %d, want 4 (same month)", got.UsageCountMonth)
	}
}

func TestConsumeQuotaMonthRollover(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	july := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	august := time.Date(2026, 8, 1, 0, 30, 0, 0, time.UTC)

	user := newTestUser(t, s, "monthly")
	key := newTestKey(t, s, user.ID, "tgk_month")

	if _, err := s.ConsumeQuota(ctx, key.KeyID, july); err != nil {
		t.Fatalf("consume in july: %v", err)
	}

	got, err := s.ConsumeQuota(ctx, key.KeyID, august)
	if err != nil {
		t.Fatalf("consume in august: %v", err)
	}
	if got.UsageCountHour != 1 || got.UsageCountDay != 1 || got.UsageCountMonth != 1 {
		t.Errorf("counters = %d/%d/%d, want 1/1/1 after month rollover",
			got.UsageCountHour, got.UsageCountDay, got.UsageCountMonth)
	}
	if got.TotalUsage != 2 {
		t.Errorf("total usage = %d, want 2 (never resets)", got.TotalUsage)
	}
}

func TestConsumeQuotaUnknownKey(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ConsumeQuota(context.Background(), "tgk_missing", time.Now())
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWindowPredicates(t *testing.T) {
	base := time.Date(2026, 8, 15, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		last, now        time.Time
		hour, day, month bool
	}{
		{"same instant", base, base, false, false, false},
		{"same hour", base, base.Add(30 * time.Minute), false, false, false},
		{"next hour same day", base, base.Add(time.Hour), true, false, false},
		{"next day same hour", base, base.Add(24 * time.Hour), true, true, false},
		{"next month", base, base.AddDate(0, 1, 0), true, true, true},
		{"next year same month number", base, base.AddDate(1, 0, 0), true, true, true},
	}
	for _, tt := range tests {
		if got := hourRolled(tt.last, tt.now); got != tt.hour {
			t.Errorf("%s: hourRolled = %v, want %v", tt.name, got, tt.hour)
		}
		if got := dayRolled(tt.last, tt.now); got != tt.day {
			t.Errorf("%s: dayRolled = %v, want %v", tt.name, got, tt.day)
		}
		if got := monthRolled(tt.last, tt.now); got != tt.month {
			t.Errorf("%s: monthRolled = %v, want %v", tt.name, got, tt.month)
		}
	}
}
