package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/service"
	"github.com/textgate/textgate/internal/store"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// Authenticate returns an HTTP middleware that resolves the request's
// bearer credential (session token or API key) into a Principal and
// attaches it to the request context. API key requests are charged against
// the key's quota as part of resolution.
//
// Failures map to 401 (missing/invalid credentials, disabled accounts,
// revoked or expired keys) or 429 (exhausted quota window).
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := bearerToken(r)

			principal, err := authSvc.Authenticate(r.Context(), credential)
			if err != nil {
				writeAuthFailure(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns an HTTP middleware that enforces a minimum role.
// It must be used after Authenticate in the middleware chain.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || !principal.Role().Implies(role) {
				writeAuthError(w, http.StatusForbidden, "Role '"+string(role)+"' required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission returns an HTTP middleware that enforces a
// resource:action permission against the principal's effective role.
// It must be used after Authenticate in the middleware chain.
func RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || !principal.Allows(resource, action) {
				writeAuthError(w, http.StatusForbidden,
					"Permission denied: "+resource+":"+action+" required",
					map[string]interface{}{"permission": resource + ":" + action})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeAuthFailure(w http.ResponseWriter, err error) {
	var qerr *store.QuotaError
	if errors.As(err, &qerr) {
		writeAuthError(w, http.StatusTooManyRequests,
			"Rate limit exceeded for "+qerr.Window+" window",
			map[string]interface{}{"window": qerr.Window, "limit": qerr.Limit})
		return
	}

	msg := "Authentication required. Provide a Bearer token or API key."
	switch {
	case errors.Is(err, service.ErrNoCredentials):
		// keep the default message
	case errors.Is(err, service.ErrAccountDisabled):
		msg = "Account is disabled"
	case errors.Is(err, service.ErrKeyRevoked):
		msg = "API key has been revoked"
	case errors.Is(err, service.ErrKeyExpired):
		msg = "API key has expired"
	default:
		msg = "Invalid authentication credentials"
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeAuthError(w, http.StatusUnauthorized, msg, nil)
}

// writeAuthError emits the standard error envelope. The handler package's
// helpers are not used here to avoid an import cycle.
func writeAuthError(w http.ResponseWriter, status int, message string, ctx map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{ //nolint:errcheck
		Error: model.ErrorDetail{
			Code:    status,
			Message: message,
			Context: ctx,
		},
	})
}
