package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/store"
)

// UserService implements account management: self-service profile updates
// and the admin-only user administration surface.
type UserService struct {
	store      *store.Store
	bcryptCost int
}

func NewUserService(st *store.Store, bcryptCost int) *UserService {
	return &UserService{store: st, bcryptCost: bcryptCost}
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns all user accounts.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// UserUpdate carries the optional fields of a user update. Nil fields are
// left untouched.
type UserUpdate struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// Update applies a partial update to a user. Role and active-flag changes
// require asAdmin; on self-service updates they are silently discarded so
// clients may round-trip their whole profile.
func (s *UserService) Update(ctx context.Context, id int64, upd UserUpdate, asAdmin bool) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil && *upd.Email != user.Email {
		if err := validateEmail(*upd.Email); err != nil {
			return nil, err
		}
		if other, err := s.store.GetUserByEmail(ctx, *upd.Email); err == nil && other.ID != id {
			return nil, &ConflictError{Field: "email", Value: *upd.Email}
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		}
		user.Email = *upd.Email
	}
	if upd.FullName != nil {
		user.FullName = *upd.FullName
	}
	if upd.Password != nil {
		if reason, ok := auth.CheckPasswordStrength(*upd.Password); !ok {
			return nil, &ValidationError{Field: "password", Reason: reason}
		}
		hash, err := auth.HashPassword(*upd.Password, s.bcryptCost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if asAdmin {
		if upd.Role != nil {
			role, err := model.ParseRole(*upd.Role)
			if err != nil {
				return nil, &ValidationError{Field: "role", Reason: err.Error()}
			}
			user.Role = role
		}
		if upd.IsActive != nil {
			user.IsActive = *upd.IsActive
		}
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes a user. The user's API keys and usage logs go with them.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}

// EnsureAdmin creates the bootstrap admin account iff no admin exists yet.
// Reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	exists, err := s.store.HasAdmin(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return false, err
	}
	admin := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     "Administrator",
		Role:         model.RoleAdmin,
		IsActive:     true,
		IsVerified:   true,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	return true, nil
}
