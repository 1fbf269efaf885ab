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

const testBcryptCost = 4 // minimum cost keeps tests fast

func newTestAuth(t *testing.T) (*AuthService, *store.Store) {
	t.Helper()
	st, err := store.New("sqlite", "")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tokens := auth.NewTokenIssuer("test-secret", 30*time.Minute)
	return NewAuthService(st, tokens, testBcryptCost), st
}

func registerTestUser(t *testing.T, svc *AuthService, username string) *model.User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "Passw0rd",
		FullName: "Test User",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return user
}

func TestRegister(t *testing.T) {
	svc, _ := newTestAuth(t)

	user := registerTestUser(t, svc, "alice")
	if user.ID == 0 {
		t.Fatal("expected non-zero ID")
	}
	if user.Role != model.RoleUser {
		t.Errorf("role = %q, want user", user.Role)
	}
	if !user.IsActive {
		t.Error("new account should be active")
	}
	if user.PasswordHash == "Passw0rd" {
		t.Fatal("password stored in plaintext")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"short username", RegisterInput{Username: "ab", Email: "a@b.co", Password: "Passw0rd"}, "username"},
		{"long username", RegisterInput{Username: strings.Repeat("x", 51), Email: "a@b.co", Password: "Passw0rd"}, "username"},
		{"bad email", RegisterInput{Username: "alice", Email: "not-an-email", Password: "Passw0rd"}, "email"},
		{"weak password", RegisterInput{Username: "alice", Email: "a@b.co", Password: "password"}, "password"},
	}
	for _, tt := range tests {
		_, err := svc.Register(ctx, tt.in)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: err = %v, want ValidationError", tt.name, err)
			continue
		}
		if verr.Field != tt.field {
			t.Errorf("%s: field = %q, want %q", tt.name, verr.Field, tt.field)
		}
	}
}

// The 3-50 username policy counts characters, not bytes.
func TestRegisterUsernameRuneLength(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	// 3 runes, 6 bytes: inside the policy.
	if _, err := svc.Register(ctx, RegisterInput{
		Username: "héé", Email: "hee@example.com", Password: "Passw0rd",
	}); err != nil {
		t.Errorf("3-rune multibyte username rejected: %v", err)
	}

	// 50 runes, 100 bytes: still inside the policy.
	if _, err := svc.Register(ctx, RegisterInput{
		Username: strings.Repeat("é", 50), Email: "long@example.com", Password: "Passw0rd",
	}); err != nil {
		t.Errorf("50-rune multibyte username rejected: %v", err)
	}

	// 2 runes: too short even though it is 4 bytes.
	_, err := svc.Register(ctx, RegisterInput{
		Username: "éé", Email: "short@example.com", Password: "Passw0rd",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "username" {
		t.Errorf("2-rune username: err = %v, want username ValidationError", err)
	}

	// 51 runes: too long.
	_, err = svc.Register(ctx, RegisterInput{
		Username: strings.Repeat("é", 51), Email: "toolong@example.com", Password: "Passw0rd",
	})
	if !errors.As(err, &verr) || verr.Field != "username" {
		t.Errorf("51-rune username: err = %v, want username ValidationError", err)
	}
}

func TestRegisterConflicts(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	registerTestUser(t, svc, "alice")

	_, err := svc.Register(ctx, RegisterInput{
		Username: "alice", Email: "fresh@example.com", Password: "Passw0rd",
	})
	var cerr *ConflictError
	if !errors.As(err, &cerr) || cerr.Field != "username" {
		t.Errorf("duplicate username: err = %v", err)
	}

	_, err = svc.Register(ctx, RegisterInput{
		Username: "alice2", Email: "alice@example.com", Password: "Passw0rd",
	})
	if !errors.As(err, &cerr) || cerr.Field != "email" {
		t.Errorf("duplicate email: err = %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "alice")

	// By username.
	sess, err := svc.Login(ctx, "alice", "Passw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("empty token")
	}
	if sess.ExpiresIn != 1800 {
		t.Errorf("expires_in = %d, want 1800", sess.ExpiresIn)
	}

	// By email.
	if _, err := svc.Login(ctx, "alice@example.com", "Passw0rd"); err != nil {
		t.Errorf("login by email: %v", err)
	}

	// Wrong password and unknown user are indistinguishable.
	if _, err := svc.Login(ctx, "alice", "WrongPass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "Passw0rd"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: err = %v", err)
	}

	stored, _ := st.GetUser(ctx, user.ID)
	if stored.LastLoginAt == nil {
		t.Error("login should stamp last_login_at")
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "mallory")
	user.IsActive = false
	if err := st.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if _, err := svc.Login(ctx, "mallory", "Passw0rd"); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("err = %v, want ErrAccountDisabled", err)
	}
}

func TestAuthenticateSession(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	registerTestUser(t, svc, "alice")
	sess, err := svc.Login(ctx, "alice", "Passw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	p, err := svc.Authenticate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Kind != "session" || p.User.Username != "alice" || p.Key != nil {
		t.Errorf("principal = %+v", p)
	}
	if p.Role() != model.RoleUser {
		t.Errorf("role = %q, want user", p.Role())
	}
}

func TestAuthenticateAPIKey(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "alice")
	keys := NewAPIKeyService(st)
	key, credential, err := keys.Create(ctx, user, KeyCreateInput{Name: "ci"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p, err := svc.Authenticate(ctx, credential)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Kind != "api_key" || p.Key == nil || p.Key.ID != key.ID {
		t.Errorf("principal = %+v", p)
	}
	// Authentication charges the quota.
	if p.Key.UsageCountHour != 1 || p.Key.TotalUsage != 1 {
		t.Errorf("quota not charged: hour=%d total=%d", p.Key.UsageCountHour, p.Key.TotalUsage)
	}
	if p.Key.LastUsedAt == nil {
		t.Error("last_used_at not stamped")
	}
}

func TestAuthenticateFailures(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "alice")
	keys := NewAPIKeyService(st)

	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("empty credential: err = %v", err)
	}
	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("garbage credential: err = %v", err)
	}
	if _, err := svc.Authenticate(ctx, "tgk_lookslikeakeybutisnot_nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown key: err = %v", err)
	}

	// Tampered secret.
	key, credential, err := keys.Create(ctx, user, KeyCreateInput{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Authenticate(ctx, credential+"x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("tampered secret: err = %v", err)
	}

	// Revoked key.
	inactive := false
	if _, err := keys.Update(ctx, user.ID, key.ID, KeyUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Authenticate(ctx, credential); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("revoked key: err = %v", err)
	}

	// Expired key.
	active := true
	past := time.Now().Add(-time.Hour)
	if _, err := keys.Update(ctx, user.ID, key.ID, KeyUpdate{IsActive: &active, ExpiresAt: &past}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Authenticate(ctx, credential); !errors.Is(err, ErrKeyExpired) {
		t.Errorf("expired key: err = %v", err)
	}
}

func TestAuthenticateDisabledOwner(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "alice")
	keys := NewAPIKeyService(st)
	_, credential, err := keys.Create(ctx, user, KeyCreateInput{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	user.IsActive = false
	if err := st.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if _, err := svc.Authenticate(ctx, credential); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("err = %v, want ErrAccountDisabled", err)
	}

	// The owner's session tokens stop working too.
	tokens := auth.NewTokenIssuer("test-secret", time.Minute)
	token, _ := tokens.Issue(user.ID, user.Username, user.Role)
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("session of disabled user: err = %v", err)
	}
}

func TestAuthenticateQuotaExhausted(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "alice")
	keys := NewAPIKeyService(st)
	_, credential, err := keys.Create(ctx, user, KeyCreateInput{RateLimitPerHour: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Authenticate(ctx, credential); err != nil {
			t.Fatalf("authenticate %d: %v", i+1, err)
		}
	}

	_, err = svc.Authenticate(ctx, credential)
	var qerr *store.QuotaError
	if !errors.As(err, &qerr) {
		t.Fatalf("err = %v, want QuotaError", err)
	}
	if qerr.Window != "hour" || qerr.Limit != 2 {
		t.Errorf("QuotaError = %+v, want hour/2", qerr)
	}
}

// A key keeps its snapshotted role even after the owner's role changes.
func TestAPIKeyRoleSnapshot(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "alice")
	keys := NewAPIKeyService(st)
	_, credential, err := keys.Create(ctx, user, KeyCreateInput{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	user.Role = model.RoleAdmin
	if err := st.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	p, err := svc.Authenticate(ctx, credential)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Role() != model.RoleUser {
		t.Errorf("key role = %q, want snapshotted user", p.Role())
	}

	// A fresh session sees the live role.
	sess, err := svc.Login(ctx, "alice", "Passw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sp, err := svc.Authenticate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sp.Role() != model.RoleAdmin {
		t.Errorf("session role = %q, want live admin", sp.Role())
	}
}
