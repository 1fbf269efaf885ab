// Package upstream is a thin HTTP client for an Ollama-compatible
// text-generation backend. It forwards request bodies untouched and leaves
// response streaming to the caller.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single upstream exchange, including streaming
// reads. Generation can be slow, so this is generous.
const DefaultTimeout = 5 * time.Minute

// Error is a failure reported by the upstream service. Status carries the
// upstream HTTP status, or 502 when the upstream was unreachable.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream: %s (status %d)", e.Message, e.Status)
}

// Stats is the token accounting an Ollama-compatible backend reports in
// the final chunk of a generate or chat response.
type Stats struct {
	Model           string `json:"model"`
	Done            bool   `json:"done"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
}

// Client talks to one Ollama-compatible backend.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a Client for the backend at baseURL. A zero timeout uses
// DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the backend is reachable and answering.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

// Models fetches the backend's model list. The caller owns the response
// body.
func (c *Client) Models(ctx context.Context) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, "/api/tags", nil)
}

// Generate forwards a completion request. The body is relayed verbatim and
// the caller owns the response body, which streams NDJSON chunks when the
// request asked for streaming.
func (c *Client) Generate(ctx context.Context, body io.Reader) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, "/api/generate", body)
}

// Chat forwards a chat-completion request. Ownership follows Generate.
func (c *Client) Chat(ctx context.Context, body io.Reader) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, "/api/chat", body)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &Error{
			Status:  http.StatusBadGateway,
			Message: "cannot reach text-generation backend",
		}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// decodeError turns an upstream failure response into an *Error, using
// the backend's {"error": "..."} body when it parses.
func decodeError(resp *http.Response) *Error {
	msg := "text-generation backend error"
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}
