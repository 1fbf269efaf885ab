package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("ping hit %s, want /api/tags", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestPingUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", 0)
	err := c.Ping(context.Background())
	var uerr *Error
	if !errors.As(err, &uerr) || uerr.Status != http.StatusBadGateway {
		t.Errorf("err = %v, want 502 upstream error", err)
	}
}

func TestGenerateStreamsChunks(t *testing.T) {
	chunks := []string{
		`{"model":"llama3","response":"Hel","done":false}`,
		`{"model":"llama3","response":"lo","done":false}`,
		`{"model":"llama3","response":"","done":true,"prompt_eval_count":12,"eval_count":34}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, chunk := range chunks {
			w.Write([]byte(chunk + "\n")) //nolint:errcheck
		}
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	resp, err := c.Generate(context.Background(), strings.NewReader(`{"model":"llama3","prompt":"hi"}`))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer resp.Body.Close()

	var last Stats
	scanner := bufio.NewScanner(resp.Body)
	n := 0
	for scanner.Scan() {
		n++
		var stats Stats
		if err := json.Unmarshal(scanner.Bytes(), &stats); err != nil {
			t.Fatalf("chunk %d: %v", n, err)
		}
		if stats.Done {
			last = stats
		}
	}
	if n != 3 {
		t.Errorf("got %d chunks, want 3", n)
	}
	if last.PromptEvalCount != 12 || last.EvalCount != 34 || last.Model != "llama3" {
		t.Errorf("final stats = %+v", last)
	}
}

func TestUpstreamErrorDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'nope' not found"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Generate(context.Background(), strings.NewReader(`{"model":"nope"}`))
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if uerr.Status != http.StatusNotFound || uerr.Message != "model 'nope' not found" {
		t.Errorf("upstream error = %+v", uerr)
	}
}

func TestUpstreamErrorGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("not json")) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Models(context.Background())
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if uerr.Status != http.StatusInternalServerError || uerr.Message != "text-generation backend error" {
		t.Errorf("upstream error = %+v", uerr)
	}
}

func TestBaseURLTrimsSlash(t *testing.T) {
	c := New("http://localhost:11434/", 0)
	if c.BaseURL() != "http://localhost:11434" {
		t.Errorf("base url = %q", c.BaseURL())
	}
}
