package handler

import (
	"net/http"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/server/middleware"
	"github.com/textgate/textgate/internal/service"
)

// UsageHandler serves the per-account usage analytics endpoints.
type UsageHandler struct {
	usageSvc *service.UsageService
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usageSvc *service.UsageService) *UsageHandler {
	return &UsageHandler{usageSvc: usageSvc}
}

// Stats returns the authenticated account's usage aggregates, optionally
// bounded by ?start= and ?end= (RFC 3339).
// GET /api/auth/usage/stats
func (h *UsageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	start, err := queryTime(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start timestamp, want RFC 3339")
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end timestamp, want RFC 3339")
		return
	}

	stats, err := h.usageSvc.Stats(r.Context(), principal.User.ID, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Recent returns the authenticated account's most recent usage log entries,
// newest first, capped by ?limit=.
// GET /api/auth/usage/recent
func (h *UsageHandler) Recent(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := queryInt(r, "limit", 0)
	logs, err := h.usageSvc.Recent(r.Context(), principal.User.ID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Logs []model.UsageLog   `json:"logs"`
		Meta model.ResponseMeta `json:"meta"`
	}{Logs: logs, Meta: model.ResponseMeta{Count: len(logs)}})
}
