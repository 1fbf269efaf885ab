package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/service"
	"github.com/textgate/textgate/internal/store"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantInMsg  string
	}{
		{"quota", &store.QuotaError{Window: "day", Limit: 1000}, http.StatusTooManyRequests, "day window"},
		{"validation", &service.ValidationError{Field: "password", Reason: "too short"}, http.StatusUnprocessableEntity, "password"},
		{"conflict", &service.ConflictError{Field: "username", Value: "alice"}, http.StatusBadRequest, "already in use"},
		{"permission", &service.PermissionError{Resource: "models", Action: "delete"}, http.StatusForbidden, "models:delete"},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
		{"no credentials", service.ErrNoCredentials, http.StatusUnauthorized, "Invalid credentials"},
		{"disabled", service.ErrAccountDisabled, http.StatusUnauthorized, "disabled"},
		{"missing", store.ErrNotFound, http.StatusNotFound, "Not found"},
		{"wrapped missing", fmt.Errorf("load user: %w", store.ErrNotFound), http.StatusNotFound, "Not found"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "disk on fire"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(rr, tc.err)

			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			resp := decodeError(t, rr)
			if resp.Error.Code != tc.wantStatus {
				t.Errorf("envelope code = %d, want %d", resp.Error.Code, tc.wantStatus)
			}
			if !strings.Contains(resp.Error.Message, tc.wantInMsg) {
				t.Errorf("message = %q, want substring %q", resp.Error.Message, tc.wantInMsg)
			}
		})
	}
}

func TestWriteServiceErrorQuotaContext(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(rr, &store.QuotaError{Window: "hour", Limit: 100})

	resp := decodeError(t, rr)
	if resp.Error.Context["window"] != "hour" {
		t.Errorf("context window = %v", resp.Error.Context["window"])
	}
	if resp.Error.Context["limit"] != float64(100) {
		t.Errorf("context limit = %v", resp.Error.Context["limit"])
	}
}

func TestWriteServiceErrorCredentialHeader(t *testing.T) {
	for _, err := range []error{service.ErrInvalidCredentials, service.ErrNoCredentials, service.ErrAccountDisabled} {
		rr := httptest.NewRecorder()
		writeServiceError(rr, err)
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("%v: missing WWW-Authenticate header", err)
		}
	}
}

func TestReadJSONStrictRejectsUnknownFields(t *testing.T) {
	var v struct {
		Email string `json:"email"`
	}

	req := httptest.NewRequest("PUT", "/", strings.NewReader(`{"email":"a@b.c","emial":"typo"}`))
	if err := readJSONStrict(req, &v); err == nil {
		t.Error("expected unknown-field error")
	}

	req = httptest.NewRequest("PUT", "/", strings.NewReader(`{"email":"a@b.c"}`))
	if err := readJSONStrict(req, &v); err != nil {
		t.Errorf("valid payload: %v", err)
	}
	if v.Email != "a@b.c" {
		t.Errorf("email = %q", v.Email)
	}
}

func TestQueryTime(t *testing.T) {
	req := httptest.NewRequest("GET", "/?start=2026-08-01T00:00:00Z", nil)
	got, err := queryTime(req, "start")
	if err != nil || got == nil {
		t.Fatalf("queryTime = %v, %v", got, err)
	}
	if got.Year() != 2026 || got.Month() != 8 {
		t.Errorf("parsed = %v", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	if got, err := queryTime(req, "start"); err != nil || got != nil {
		t.Errorf("missing param: %v, %v, want nil, nil", got, err)
	}

	req = httptest.NewRequest("GET", "/?start=yesterday", nil)
	if _, err := queryTime(req, "start"); err == nil {
		t.Error("expected parse error")
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=25", nil)
	if got := queryInt(req, "limit", 50); got != 25 {
		t.Errorf("limit = %d, want 25", got)
	}
	req = httptest.NewRequest("GET", "/?limit=abc", nil)
	if got := queryInt(req, "limit", 50); got != 50 {
		t.Errorf("bad limit = %d, want default 50", got)
	}
}

func TestPathID(t *testing.T) {
	if id, err := pathID("42"); err != nil || id != 42 {
		t.Errorf("pathID(42) = %d, %v", id, err)
	}
	if _, err := pathID("abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
}
