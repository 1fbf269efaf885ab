package openapi

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDocumentPaths(t *testing.T) {
	doc := Document("http://localhost:8090", "1.0.0")

	wantPaths := []string{
		"/api/auth/register",
		"/api/auth/login",
		"/api/auth/me",
		"/api/auth/users",
		"/api/auth/users/{id}",
		"/api/auth/api-keys",
		"/api/auth/api-keys/{id}",
		"/api/auth/usage/stats",
		"/api/auth/usage/recent",
		"/api/generate",
		"/api/chat",
		"/api/models",
		"/",
		"/healthz",
		"/readyz",
	}
	for _, p := range wantPaths {
		if doc.Paths.Value(p) == nil {
			t.Errorf("path %s missing from document", p)
		}
	}

	if doc.Paths.Len() != len(wantPaths) {
		t.Errorf("document has %d paths, want %d", doc.Paths.Len(), len(wantPaths))
	}
}

func TestDocumentSchemas(t *testing.T) {
	doc := Document("http://localhost:8090", "1.0.0")

	for _, name := range []string{"ErrorResponse", "User", "APIKey", "UsageStats", "LoginResponse", "CreateKeyResponse"} {
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Errorf("schema %s missing from components", name)
		}
	}

	// Key material must never appear in the serialized surface.
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	for _, forbidden := range []string{"key_hash", "password_hash"} {
		if strings.Contains(string(raw), forbidden) {
			t.Errorf("document exposes %s", forbidden)
		}
	}
}

func TestDocumentUnauthenticatedEndpoints(t *testing.T) {
	doc := Document("http://localhost:8090", "1.0.0")

	for _, p := range []string{"/", "/healthz", "/readyz", "/api/auth/register", "/api/auth/login"} {
		item := doc.Paths.Value(p)
		if item == nil {
			t.Fatalf("path %s missing", p)
		}
		var op = item.Get
		if op == nil {
			op = item.Post
		}
		if op.Security == nil || len(*op.Security) != 0 {
			t.Errorf("path %s should carry an empty security requirement", p)
		}
	}
}
