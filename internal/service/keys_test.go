package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/store"
)

func TestKeyCreateDefaults(t *testing.T) {
	authSvc, st := newTestAuth(t)
	keys := NewAPIKeyService(st)
	ctx := context.Background()

	user := registerTestUser(t, authSvc, "alice")
	key, credential, err := keys.Create(ctx, user, KeyCreateInput{Name: "laptop"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if key.RateLimitPerHour != model.DefaultHourlyLimit ||
		key.RateLimitPerDay != model.DefaultDailyLimit ||
		key.RateLimitPerMonth != model.DefaultMonthlyLimit {
		t.Errorf("limits = %d/%d/%d, want defaults",
			key.RateLimitPerHour, key.RateLimitPerDay, key.RateLimitPerMonth)
	}
	if key.ExpiresAt == nil {
		t.Fatal("default expiry not applied")
	}
	if until := time.Until(*key.ExpiresAt); until < 364*24*time.Hour || until > 366*24*time.Hour {
		t.Errorf("default expiry %v not about a year out", key.ExpiresAt)
	}
	if key.Role != user.Role {
		t.Errorf("key role = %q, want owner's %q", key.Role, user.Role)
	}

	// The credential embeds the key_id and verifies against the stored hash.
	if !strings.HasPrefix(credential, key.KeyID+"_") {
		t.Errorf("credential %q does not start with key id", credential)
	}
	_, secret, err := auth.SplitCredential(credential)
	if err != nil {
		t.Fatalf("SplitCredential: %v", err)
	}
	if !auth.VerifySecret(key.KeyHash, secret) {
		t.Error("stored hash does not match credential secret")
	}
}

func TestKeyCreateRejectsPastExpiry(t *testing.T) {
	authSvc, st := newTestAuth(t)
	keys := NewAPIKeyService(st)
	ctx := context.Background()

	user := registerTestUser(t, authSvc, "alice")
	past := time.Now().Add(-time.Hour)
	_, _, err := keys.Create(ctx, user, KeyCreateInput{ExpiresAt: &past})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "expires_at" {
		t.Errorf("err = %v, want expires_at ValidationError", err)
	}
}

func TestKeyOwnerScoping(t *testing.T) {
	authSvc, st := newTestAuth(t)
	keys := NewAPIKeyService(st)
	ctx := context.Background()

	alice := registerTestUser(t, authSvc, "alice")
	bob := registerTestUser(t, authSvc, "bob")

	key, _, err := keys.Create(ctx, alice, KeyCreateInput{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Someone else's key is indistinguishable from a missing one.
	if _, err := keys.Get(ctx, bob.ID, key.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get as other user: err = %v, want ErrNotFound", err)
	}
	if _, err := keys.Update(ctx, bob.ID, key.ID, KeyUpdate{Name: strp("stolen")}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update as other user: err = %v, want ErrNotFound", err)
	}
	if err := keys.Delete(ctx, bob.ID, key.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete as other user: err = %v, want ErrNotFound", err)
	}

	// The owner still sees it.
	if _, err := keys.Get(ctx, alice.ID, key.ID); err != nil {
		t.Errorf("Get as owner: %v", err)
	}

	aliceKeys, err := keys.List(ctx, alice.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(aliceKeys) != 1 {
		t.Errorf("alice has %d keys, want 1", len(aliceKeys))
	}
	bobKeys, _ := keys.List(ctx, bob.ID)
	if len(bobKeys) != 0 {
		t.Errorf("bob has %d keys, want 0", len(bobKeys))
	}
}

func TestKeyUpdate(t *testing.T) {
	authSvc, st := newTestAuth(t)
	keys := NewAPIKeyService(st)
	ctx := context.Background()

	user := registerTestUser(t, authSvc, "alice")
	key, _, err := keys.Create(ctx, user, KeyCreateInput{Name: "old"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	limit := int64(5)
	updated, err := keys.Update(ctx, user.ID, key.ID, KeyUpdate{
		Name:             strp("new"),
		RateLimitPerHour: &limit,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "new" || updated.RateLimitPerHour != 5 {
		t.Errorf("update not applied: %+v", updated)
	}
	// Untouched fields survive.
	if updated.RateLimitPerDay != model.DefaultDailyLimit {
		t.Errorf("day limit changed unexpectedly: %d", updated.RateLimitPerDay)
	}

	bad := int64(-1)
	if _, err := keys.Update(ctx, user.ID, key.ID, KeyUpdate{RateLimitPerDay: &bad}); err == nil {
		t.Error("negative limit accepted")
	}
}
