package service

import (
	"errors"
	"fmt"
)

// Authentication failures. All credential-shaped failures collapse into
// ErrInvalidCredentials so callers cannot probe which part was wrong.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrKeyExpired         = errors.New("api key expired")
	ErrNoCredentials      = errors.New("no credentials provided")
)

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConflictError reports a uniqueness violation on a request field.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already in use: %s", e.Field, e.Value)
}

// PermissionError reports a missing resource:action permission.
type PermissionError struct {
	Resource string
	Action   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s:%s required", e.Resource, e.Action)
}
