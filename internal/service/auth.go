package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/store"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Principal is the authenticated identity resolved for a request. Session
// principals carry only a user; API key principals carry the key as well.
type Principal struct {
	Kind string // "session" or "api_key"
	User *model.User
	Key  *model.APIKey
}

// Role returns the role the principal is evaluated against: the key's
// snapshotted role for API key principals, the account's live role for
// session principals.
func (p *Principal) Role() model.Role {
	if p.Key != nil {
		return p.Key.Role
	}
	return p.User.Role
}

// Allows reports whether the principal may perform action on resource.
func (p *Principal) Allows(resource, action string) bool {
	return p.Role().Allows(resource, action)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresIn int // seconds
	User      *model.User
}

// AuthService implements registration, login, and the per-request
// authentication resolver.
type AuthService struct {
	store      *store.Store
	tokens     *auth.TokenIssuer
	bcryptCost int
}

// NewAuthService creates an AuthService. A bcryptCost of 0 uses the
// default cost.
func NewAuthService(st *store.Store, tokens *auth.TokenIssuer, bcryptCost int) *AuthService {
	return &AuthService{
		store:      st,
		tokens:     tokens,
		bcryptCost: bcryptCost,
	}
}

// TokenTTL returns the configured session token lifetime.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// RegisterInput is the payload for Register. Role is not accepted here:
// self-registered accounts always start as regular users.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

// Register validates the input and creates a new active user account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if reason, ok := auth.CheckPasswordStrength(in.Password); !ok {
		return nil, &ValidationError{Field: "password", Reason: reason}
	}

	if _, err := s.store.GetUserByUsername(ctx, in.Username); err == nil {
		return nil, &ConflictError{Field: "username", Value: in.Username}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, &ConflictError{Field: "email", Value: in.Email}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies a username-or-email plus password pair and returns a
// signed session token. The last login timestamp is stamped on success.
func (s *AuthService) Login(ctx context.Context, login, password string) (*Session, error) {
	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	token, err := s.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	_ = s.store.UpdateUserLastLogin(ctx, user.ID)
	now := time.Now().UTC()
	user.LastLoginAt = &now

	return &Session{
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
		User:      user,
	}, nil
}

// Authenticate resolves a bearer credential into a Principal. Session
// tokens are tried first; anything carrying the API key prefix is treated
// as a key credential. The resolver fails closed: unknown or deactivated
// principals and revoked or expired keys are rejected.
//
// Authenticating with an API key charges one request against its quota
// atomically; a *store.QuotaError is returned when a window is exhausted.
func (s *AuthService) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrNoCredentials
	}

	if claims, err := s.tokens.Verify(credential); err == nil {
		return s.resolveSession(ctx, claims)
	}
	if strings.HasPrefix(credential, auth.KeyIDPrefix) {
		return s.resolveAPIKey(ctx, credential)
	}
	return nil, ErrInvalidCredentials
}

func (s *AuthService) resolveSession(ctx context.Context, claims *auth.Claims) (*Principal, error) {
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	// Best effort; a failed stamp must not fail the request.
	_ = s.store.UpdateUserLastLogin(ctx, user.ID)

	return &Principal{Kind: "session", User: user}, nil
}

func (s *AuthService) resolveAPIKey(ctx context.Context, credential string) (*Principal, error) {
	keyID, secret, err := auth.SplitCredential(credential)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	key, err := s.store.GetAPIKeyByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load api key: %w", err)
	}
	if !auth.VerifySecret(key.KeyHash, secret) {
		return nil, ErrInvalidCredentials
	}
	if !key.IsActive {
		return nil, ErrKeyRevoked
	}
	if key.Expired(time.Now()) {
		return nil, ErrKeyExpired
	}

	user, err := s.store.GetUser(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load key owner: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	charged, err := s.store.ConsumeQuota(ctx, key.KeyID, time.Now())
	if err != nil {
		return nil, err
	}

	return &Principal{Kind: "api_key", User: user, Key: charged}, nil
}

func validateUsername(username string) error {
	// Characters, not bytes: multibyte usernames count by rune.
	n := utf8.RuneCountInString(username)
	if n < 3 || n > 50 {
		return &ValidationError{Field: "username", Reason: "must be 3-50 characters"}
	}
	return nil
}

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "invalid email address"}
	}
	return nil
}
