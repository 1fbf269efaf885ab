package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/textgate/textgate/internal/server/middleware"
	"github.com/textgate/textgate/internal/upstream"
)

func newProxyHandler(t *testing.T, backend http.HandlerFunc) *ProxyHandler {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProxyHandler(upstream.New(srv.URL, 0), logger)
}

// withCounts attaches a usage counter the way the usage middleware does.
func withCounts(r *http.Request) (*http.Request, *middleware.UsageCounts) {
	counts := &middleware.UsageCounts{}
	ctx := context.WithValue(r.Context(), middleware.UsageCountsKey, counts)
	return r.WithContext(ctx), counts
}

func TestGenerateRelaysStreamAndCapturesStats(t *testing.T) {
	h := newProxyHandler(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("backend path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"prompt":"count to three"`) {
			t.Errorf("backend body = %s", body)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"model":"llama3","response":"one","done":false}` + "\n"))                                    //nolint:errcheck
		w.Write([]byte("\n"))                                                                                         //nolint:errcheck
		w.Write([]byte(`{"model":"llama3","response":"","done":true,"prompt_eval_count":11,"eval_count":42}` + "\n")) //nolint:errcheck
	})

	req := httptest.NewRequest("POST", "/api/generate",
		strings.NewReader(`{"model":"llama3","prompt":"count to three"}`))
	req, counts := withCounts(req)
	rr := httptest.NewRecorder()
	h.Generate(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}
	// Blank lines are dropped from the relayed stream.
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("relayed %d lines, want 2: %q", len(lines), rr.Body.String())
	}
	if counts.Model != "llama3" || counts.PromptTokens != 11 || counts.CompletionTokens != 42 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestGenerateValidation(t *testing.T) {
	h := newProxyHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be reached for invalid payloads")
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"garbage", `{not json`, http.StatusBadRequest},
		{"missing model", `{"prompt":"hi"}`, http.StatusUnprocessableEntity},
		{"missing prompt", `{"model":"llama3"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/generate", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.Generate(rr, req)
			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
		})
	}
}

func TestChatRequiresMessages(t *testing.T) {
	h := newProxyHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be reached")
	})

	req := httptest.NewRequest("POST", "/api/chat",
		strings.NewReader(`{"model":"llama3","messages":[]}`))
	rr := httptest.NewRecorder()
	h.Chat(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
}

func TestProxyRelaysUpstreamError(t *testing.T) {
	h := newProxyHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'missing' not found"}`)) //nolint:errcheck
	})

	req := httptest.NewRequest("POST", "/api/generate",
		strings.NewReader(`{"model":"missing","prompt":"hi"}`))
	rr := httptest.NewRecorder()
	h.Generate(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error.Message != "model 'missing' not found" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestProxyUnreachableBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewProxyHandler(upstream.New("http://127.0.0.1:1", 0), logger)

	req := httptest.NewRequest("POST", "/api/generate",
		strings.NewReader(`{"model":"llama3","prompt":"hi"}`))
	rr := httptest.NewRecorder()
	h.Generate(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestModelsPassthrough(t *testing.T) {
	h := newProxyHandler(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("backend path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"llama3"},{"name":"mistral"}]}`)) //nolint:errcheck
	})

	req := httptest.NewRequest("GET", "/api/models", nil)
	rr := httptest.NewRecorder()
	h.Models(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "mistral") {
		t.Errorf("body = %s", rr.Body.String())
	}
}
