package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/textgate/textgate/internal/server/middleware"
	"github.com/textgate/textgate/internal/upstream"
)

// maxProxyBody bounds the request bodies relayed to the backend.
const maxProxyBody = 10 << 20

// ProxyHandler relays generation requests to the text-generation backend.
// Bodies pass through verbatim; the only inspection is pulling the model
// name and the final-chunk token stats into the request's usage counter.
type ProxyHandler struct {
	client *upstream.Client
	logger *slog.Logger
}

// NewProxyHandler creates a new ProxyHandler.
func NewProxyHandler(client *upstream.Client, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		client: client,
		logger: logger,
	}
}

// Generate relays a completion request.
// POST /api/generate
func (h *ProxyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	body, envelope, ok := h.readProxyBody(w, r)
	if !ok {
		return
	}
	if envelope.Prompt == "" {
		writeError(w, http.StatusUnprocessableEntity, "prompt is required")
		return
	}

	resp, err := h.client.Generate(r.Context(), bytes.NewReader(body))
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.relay(w, r, resp)
}

// Chat relays a chat-completion request.
// POST /api/chat
func (h *ProxyHandler) Chat(w http.ResponseWriter, r *http.Request) {
	body, envelope, ok := h.readProxyBody(w, r)
	if !ok {
		return
	}
	if len(envelope.Messages) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "messages are required")
		return
	}

	resp, err := h.client.Chat(r.Context(), bytes.NewReader(body))
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	h.relay(w, r, resp)
}

// Models relays the backend's model list.
// GET /api/models
func (h *ProxyHandler) Models(w http.ResponseWriter, r *http.Request) {
	resp, err := h.client.Models(r.Context())
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body) //nolint:errcheck
}

// proxyEnvelope is the slice of the request body the gateway inspects.
type proxyEnvelope struct {
	Model    string            `json:"model"`
	Prompt   string            `json:"prompt"`
	Messages []json.RawMessage `json:"messages"`
}

// readProxyBody buffers and minimally validates a proxy request body, and
// stamps the model name onto the request's usage counter.
func (h *ProxyHandler) readProxyBody(w http.ResponseWriter, r *http.Request) ([]byte, proxyEnvelope, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Cannot read request body")
		return nil, proxyEnvelope{}, false
	}

	var envelope proxyEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, proxyEnvelope{}, false
	}
	if envelope.Model == "" {
		writeError(w, http.StatusUnprocessableEntity, "model is required")
		return nil, proxyEnvelope{}, false
	}

	if counts := middleware.GetUsageCounts(r.Context()); counts != nil {
		counts.Model = envelope.Model
	}
	return body, envelope, true
}

// relay streams the backend response line by line, flushing after each
// NDJSON chunk and harvesting token stats from the final one.
func (h *ProxyHandler) relay(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/x-ndjson"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	counts := middleware.GetUsageCounts(r.Context())

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		w.Write(line)         //nolint:errcheck
		w.Write([]byte{'\n'}) //nolint:errcheck
		if flusher != nil {
			flusher.Flush()
		}

		var stats upstream.Stats
		if err := json.Unmarshal(line, &stats); err != nil {
			continue
		}
		if stats.Done && counts != nil {
			counts.PromptTokens = stats.PromptEvalCount
			counts.CompletionTokens = stats.EvalCount
			if stats.Model != "" {
				counts.Model = stats.Model
			}
		}
	}
	if err := scanner.Err(); err != nil {
		// Headers are long gone; all we can do is note the truncation.
		h.logger.Warn("upstream stream truncated", "error", err, "path", r.URL.Path)
	}
}

func (h *ProxyHandler) writeUpstreamError(w http.ResponseWriter, err error) {
	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		writeError(w, uerr.Status, uerr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "Backend request failed: "+err.Error())
}
