package model

import "time"

// Default quota ceilings and lifetime applied to new API keys when the
// caller does not override them.
const (
	DefaultHourlyLimit  int64 = 100
	DefaultDailyLimit   int64 = 1000
	DefaultMonthlyLimit int64 = 10000

	DefaultKeyLifetime = 365 * 24 * time.Hour
)

// APIKey represents a long-lived credential bound to a user. The raw secret
// is never stored; only a SHA-256 hash is persisted, alongside the public
// key_id used to look the key up. The role is snapshotted at creation so a
// key's access does not silently widen when the owner's role changes.
//
// Usage counters are windowed (hour/day/month) and lazily reset: each
// counter carries the timestamp of its last reset, and the windows roll
// over on the next consume after the boundary passes.
type APIKey struct {
	ID      int64  `json:"id" db:"id"`
	KeyID   string `json:"key_id" db:"key_id"`
	KeyHash string `json:"-" db:"key_hash"` // SHA-256 of the secret, never expose
	Name    string `json:"name" db:"name"`
	UserID  int64  `json:"user_id" db:"user_id"`
	Role    Role   `json:"role" db:"role"`

	IsActive bool `json:"is_active" db:"is_active"`

	RateLimitPerHour  int64 `json:"rate_limit_per_hour" db:"rate_limit_per_hour"`
	RateLimitPerDay   int64 `json:"rate_limit_per_day" db:"rate_limit_per_day"`
	RateLimitPerMonth int64 `json:"rate_limit_per_month" db:"rate_limit_per_month"`

	UsageCountHour  int64 `json:"usage_count_hour" db:"usage_count_hour"`
	UsageCountDay   int64 `json:"usage_count_day" db:"usage_count_day"`
	UsageCountMonth int64 `json:"usage_count_month" db:"usage_count_month"`
	TotalUsage      int64 `json:"total_usage" db:"total_usage"`

	LastResetHour  time.Time `json:"-" db:"last_reset_hour"`
	LastResetDay   time.Time `json:"-" db:"last_reset_day"`
	LastResetMonth time.Time `json:"-" db:"last_reset_month"`

	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Expired reports whether the key's expiry has passed at now. Keys without
// an expiry never expire.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
