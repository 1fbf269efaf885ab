package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/server/middleware"
	"github.com/textgate/textgate/internal/service"
)

// KeyHandler serves the owner-scoped API key endpoints.
type KeyHandler struct {
	keySvc *service.APIKeyService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keySvc *service.APIKeyService) *KeyHandler {
	return &KeyHandler{keySvc: keySvc}
}

// createKeyRequest is the expected payload for Create. Zero limits fall back
// to the defaults; a nil expiry gets the default key lifetime.
type createKeyRequest struct {
	Name              string     `json:"name"`
	RateLimitPerHour  int64      `json:"rate_limit_per_hour"`
	RateLimitPerDay   int64      `json:"rate_limit_per_day"`
	RateLimitPerMonth int64      `json:"rate_limit_per_month"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// createKeyResponse includes the combined credential (shown once only).
type createKeyResponse struct {
	APIKey string        `json:"api_key"` // Plaintext credential, shown ONCE.
	Key    *model.APIKey `json:"key"`
}

// Create mints a new API key for the authenticated account and returns the
// combined credential exactly once.
// POST /api/auth/api-keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	key, credential, err := h.keySvc.Create(r.Context(), principal.User, service.KeyCreateInput{
		Name:              req.Name,
		RateLimitPerHour:  req.RateLimitPerHour,
		RateLimitPerDay:   req.RateLimitPerDay,
		RateLimitPerMonth: req.RateLimitPerMonth,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createKeyResponse{
		APIKey: credential,
		Key:    key,
	})
}

// List returns the authenticated account's keys, newest first. Hashes are
// never serialized.
// GET /api/auth/api-keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	keys, err := h.keySvc.List(r.Context(), principal.User.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Keys []model.APIKey     `json:"keys"`
		Meta model.ResponseMeta `json:"meta"`
	}{Keys: keys, Meta: model.ResponseMeta{Count: len(keys)}})
}

// updateKeyRequest is the expected payload for Update. Absent fields are
// left untouched; unknown fields are rejected.
type updateKeyRequest struct {
	Name              *string    `json:"name"`
	IsActive          *bool      `json:"is_active"`
	RateLimitPerHour  *int64     `json:"rate_limit_per_hour"`
	RateLimitPerDay   *int64     `json:"rate_limit_per_day"`
	RateLimitPerMonth *int64     `json:"rate_limit_per_month"`
	ExpiresAt         *time.Time `json:"expires_at"`
}

// Update modifies one of the authenticated account's keys. Another owner's
// key is indistinguishable from a missing one.
// PUT /api/auth/api-keys/{id}
func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}

	var req updateKeyRequest
	if err := readJSONStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	key, err := h.keySvc.Update(r.Context(), principal.User.ID, id, service.KeyUpdate{
		Name:              req.Name,
		IsActive:          req.IsActive,
		RateLimitPerHour:  req.RateLimitPerHour,
		RateLimitPerDay:   req.RateLimitPerDay,
		RateLimitPerMonth: req.RateLimitPerMonth,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// Delete removes one of the authenticated account's keys. Usage logs keep
// their user attribution.
// DELETE /api/auth/api-keys/{id}
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}

	if err := h.keySvc.Delete(r.Context(), principal.User.ID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key deleted",
	})
}
