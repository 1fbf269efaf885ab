package service

import (
	"context"
	"fmt"
	"time"

	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/store"
)

// APIKeyService implements API key lifecycle management. All operations
// are scoped to the owning user: a key row belonging to someone else is
// reported as not found, never as forbidden.
type APIKeyService struct {
	store *store.Store
}

func NewAPIKeyService(st *store.Store) *APIKeyService {
	return &APIKeyService{store: st}
}

// KeyCreateInput carries the optional knobs for a new key. Zero limits
// fall back to the defaults; a nil expiry gets the default lifetime.
type KeyCreateInput struct {
	Name              string
	RateLimitPerHour  int64
	RateLimitPerDay   int64
	RateLimitPerMonth int64
	ExpiresAt         *time.Time
}

// Create mints a new API key for owner. The combined credential is
// returned exactly once; only its hash is stored. The key snapshots the
// owner's current role.
func (s *APIKeyService) Create(ctx context.Context, owner *model.User, in KeyCreateInput) (*model.APIKey, string, error) {
	if in.RateLimitPerHour <= 0 {
		in.RateLimitPerHour = model.DefaultHourlyLimit
	}
	if in.RateLimitPerDay <= 0 {
		in.RateLimitPerDay = model.DefaultDailyLimit
	}
	if in.RateLimitPerMonth <= 0 {
		in.RateLimitPerMonth = model.DefaultMonthlyLimit
	}
	if in.ExpiresAt == nil {
		exp := time.Now().UTC().Add(model.DefaultKeyLifetime)
		in.ExpiresAt = &exp
	} else if in.ExpiresAt.Before(time.Now()) {
		return nil, "", &ValidationError{Field: "expires_at", Reason: "must be in the future"}
	}

	keyID, secret, err := auth.GenerateKeyPair()
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}

	key := &model.APIKey{
		KeyID:             keyID,
		KeyHash:           auth.HashSecret(secret),
		Name:              in.Name,
		UserID:            owner.ID,
		Role:              owner.Role,
		IsActive:          true,
		RateLimitPerHour:  in.RateLimitPerHour,
		RateLimitPerDay:   in.RateLimitPerDay,
		RateLimitPerMonth: in.RateLimitPerMonth,
		ExpiresAt:         in.ExpiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("save api key: %w", err)
	}

	return key, auth.Credential(keyID, secret), nil
}

// List returns all keys owned by userID, newest first.
func (s *APIKeyService) List(ctx context.Context, userID int64) ([]model.APIKey, error) {
	return s.store.ListAPIKeysByUser(ctx, userID)
}

// Get returns one of userID's keys by row ID.
func (s *APIKeyService) Get(ctx context.Context, userID, id int64) (*model.APIKey, error) {
	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if key.UserID != userID {
		return nil, store.ErrNotFound
	}
	return key, nil
}

// KeyUpdate carries the optional fields of a key update. Nil fields are
// left untouched.
type KeyUpdate struct {
	Name              *string    `json:"name"`
	IsActive          *bool      `json:"is_active"`
	RateLimitPerHour  *int64     `json:"rate_limit_per_hour"`
	RateLimitPerDay   *int64     `json:"rate_limit_per_day"`
	RateLimitPerMonth *int64     `json:"rate_limit_per_month"`
	ExpiresAt         *time.Time `json:"expires_at"`
}

// Update applies a partial update to one of userID's keys.
func (s *APIKeyService) Update(ctx context.Context, userID, id int64, upd KeyUpdate) (*model.APIKey, error) {
	key, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		key.Name = *upd.Name
	}
	if upd.IsActive != nil {
		key.IsActive = *upd.IsActive
	}
	if upd.RateLimitPerHour != nil {
		if *upd.RateLimitPerHour <= 0 {
			return nil, &ValidationError{Field: "rate_limit_per_hour", Reason: "must be positive"}
		}
		key.RateLimitPerHour = *upd.RateLimitPerHour
	}
	if upd.RateLimitPerDay != nil {
		if *upd.RateLimitPerDay <= 0 {
			return nil, &ValidationError{Field: "rate_limit_per_day", Reason: "must be positive"}
		}
		key.RateLimitPerDay = *upd.RateLimitPerDay
	}
	if upd.RateLimitPerMonth != nil {
		if *upd.RateLimitPerMonth <= 0 {
			return nil, &ValidationError{Field: "rate_limit_per_month", Reason: "must be positive"}
		}
		key.RateLimitPerMonth = *upd.RateLimitPerMonth
	}
	if upd.ExpiresAt != nil {
		key.ExpiresAt = upd.ExpiresAt
	}

	if err := s.store.UpdateAPIKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Delete removes one of userID's keys. Usage logs written through the key
// keep their user attribution.
func (s *APIKeyService) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteAPIKey(ctx, id)
}
