package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/upstream"
)

// registerTools registers all textgate MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("textgate_list_models",
			mcp.WithDescription(
				"List the models available on the text-generation backend. "+
					"Use this first to discover valid model names before generating.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListModels,
	)

	// ----- Generation tools -----

	srv.AddTool(
		mcp.NewTool("textgate_generate",
			mcp.WithDescription(
				"Generate a text completion for a prompt. The full response is "+
					"collected and returned in one piece, together with the token "+
					"counts reported by the backend. Usage is recorded against the "+
					"operator account.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("model",
				mcp.Required(),
				mcp.Description("Name of the model to generate with (see textgate_list_models)"),
			),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("The prompt text to complete"),
			),
			mcp.WithString("system",
				mcp.Description("Optional system prompt"),
			),
		),
		s.handleGenerate,
	)

	srv.AddTool(
		mcp.NewTool("textgate_chat",
			mcp.WithDescription(
				"Run a chat completion over a message history. Each message is an "+
					"object with 'role' (system, user, or assistant) and 'content'. "+
					"Returns the assistant reply and the token counts reported by "+
					"the backend.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("model",
				mcp.Required(),
				mcp.Description("Name of the model to chat with"),
			),
			mcp.WithArray("messages",
				mcp.Required(),
				mcp.Description("Message history (e.g. [{\"role\": \"user\", \"content\": \"hello\"}])"),
			),
		),
		s.handleChat,
	)

	// ----- Analytics tools -----

	srv.AddTool(
		mcp.NewTool("textgate_usage_stats",
			mcp.WithDescription(
				"Aggregate usage statistics for the operator account: total "+
					"requests, total tokens, average latency, and per-endpoint and "+
					"per-status breakdowns. Optionally bounded to a time range.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("start",
				mcp.Description("Range start as an RFC 3339 timestamp (e.g. 2026-08-01T00:00:00Z)"),
			),
			mcp.WithString("end",
				mcp.Description("Range end as an RFC 3339 timestamp"),
			),
		),
		s.handleUsageStats,
	)

	srv.AddTool(
		mcp.NewTool("textgate_recent_usage",
			mcp.WithDescription(
				"The operator account's most recent request log entries, newest "+
					"first: endpoint, model, token counts, latency, and status.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of entries to return (default 20, max 500)"),
			),
		),
		s.handleRecentUsage,
	)

	srv.AddTool(
		mcp.NewTool("textgate_list_keys",
			mcp.WithDescription(
				"List the operator account's API keys: name, prefix, quota limits, "+
					"current window usage, and expiry. Key secrets are never included.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListKeys,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

// handleListModels returns the backend's model list.
func (s *MCPServer) handleListModels(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	resp, err := s.upstream.Models(ctx)
	if err != nil {
		return toolError("Failed to list models: %v", err)
	}
	defer resp.Body.Close()

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return toolError("Failed to decode model list: %v", err)
	}
	return successJSON(payload)
}

// handleGenerate runs a completion and returns the collected response.
func (s *MCPServer) handleGenerate(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	modelName, err := requireString(request, "model")
	if err != nil {
		return toolError("%v. Use textgate_list_models to discover model names.", err)
	}
	prompt, err := requireString(request, "prompt")
	if err != nil {
		return toolError("%v", err)
	}

	body := map[string]interface{}{
		"model":  modelName,
		"prompt": prompt,
	}
	if system := optionalString(request, "system"); system != "" {
		body["system"] = system
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return toolError("Failed to encode request: %v", err)
	}

	start := time.Now()
	resp, err := s.upstream.Generate(ctx, bytes.NewReader(raw))
	if err != nil {
		return toolError("Generation failed: %v", err)
	}
	text, stats, err := collectStream(resp, "response")
	if err != nil {
		return toolError("Generation stream failed: %v", err)
	}

	s.recordUsage(ctx, "mcp:generate", modelName, stats, start)

	return successJSON(map[string]interface{}{
		"model":             modelName,
		"response":          text,
		"prompt_tokens":     stats.PromptEvalCount,
		"completion_tokens": stats.EvalCount,
	})
}

// handleChat runs a chat completion over a message history.
func (s *MCPServer) handleChat(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	modelName, err := requireString(request, "model")
	if err != nil {
		return toolError("%v. Use textgate_list_models to discover model names.", err)
	}
	messages := getObjectSliceArg(request, "messages")
	if len(messages) == 0 {
		return toolError("No messages provided. The 'messages' parameter must be an array " +
			"of objects, e.g. [{\"role\": \"user\", \"content\": \"hello\"}]")
	}
	for i, m := range messages {
		if m["role"] == nil || m["content"] == nil {
			return toolError("Message %d is missing 'role' or 'content'", i)
		}
	}

	raw, err := json.Marshal(map[string]interface{}{
		"model":    modelName,
		"messages": messages,
	})
	if err != nil {
		return toolError("Failed to encode request: %v", err)
	}

	start := time.Now()
	resp, err := s.upstream.Chat(ctx, bytes.NewReader(raw))
	if err != nil {
		return toolError("Chat failed: %v", err)
	}
	text, stats, err := collectStream(resp, "chat")
	if err != nil {
		return toolError("Chat stream failed: %v", err)
	}

	s.recordUsage(ctx, "mcp:chat", modelName, stats, start)

	return successJSON(map[string]interface{}{
		"model":             modelName,
		"message":           map[string]string{"role": "assistant", "content": text},
		"prompt_tokens":     stats.PromptEvalCount,
		"completion_tokens": stats.EvalCount,
	})
}

// handleUsageStats returns the operator's aggregate usage.
func (s *MCPServer) handleUsageStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	var start, end *time.Time
	if v := optionalString(request, "start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return toolError("Invalid 'start' timestamp %q: want RFC 3339, e.g. 2026-08-01T00:00:00Z", v)
		}
		start = &t
	}
	if v := optionalString(request, "end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return toolError("Invalid 'end' timestamp %q: want RFC 3339", v)
		}
		end = &t
	}

	stats, err := s.usage.Stats(ctx, s.operator.ID, start, end)
	if err != nil {
		return toolError("Failed to load usage stats: %v", err)
	}
	return successJSON(stats)
}

// handleRecentUsage returns the operator's latest request log entries.
func (s *MCPServer) handleRecentUsage(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := clamp(optionalInt(request, "limit", 20), 1, 500)
	logs, err := s.usage.Recent(ctx, s.operator.ID, limit)
	if err != nil {
		return toolError("Failed to load recent usage: %v", err)
	}
	return successJSON(map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// handleListKeys returns the operator's API key metadata.
func (s *MCPServer) handleListKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	keys, err := s.keys.List(ctx, s.operator.ID)
	if err != nil {
		return toolError("Failed to list API keys: %v", err)
	}
	return successJSON(map[string]interface{}{
		"keys":  keys,
		"count": len(keys),
	})
}

// recordUsage writes one usage log entry for a completed MCP generation.
func (s *MCPServer) recordUsage(ctx context.Context, endpoint, modelName string, stats upstream.Stats, start time.Time) {
	s.usage.Record(context.WithoutCancel(ctx), &model.UsageLog{
		UserID:           s.operator.ID,
		Endpoint:         endpoint,
		Method:           "MCP",
		Model:            modelName,
		PromptTokens:     stats.PromptEvalCount,
		CompletionTokens: stats.EvalCount,
		TotalTokens:      stats.PromptEvalCount + stats.EvalCount,
		LatencyMs:        float64(time.Since(start).Microseconds()) / 1000.0,
		StatusCode:       200,
		UserAgent:        "textgate-mcp",
	})
}

// collectStream drains an NDJSON generation stream, concatenating the text
// chunks and keeping the final chunk's token stats. mode selects the chunk
// field holding the text: "response" for completions, "chat" for the nested
// message content.
func collectStream(resp *http.Response, mode string) (string, upstream.Stats, error) {
	defer resp.Body.Close()

	var (
		text  strings.Builder
		final upstream.Stats
	)

	type chunk struct {
		upstream.Stats
		Response string `json:"response"`
		Message  struct {
			Content string `json:"content"`
		} `json:"message"`
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c chunk
		if err := json.Unmarshal(line, &c); err != nil {
			continue
		}
		if mode == "chat" {
			text.WriteString(c.Message.Content)
		} else {
			text.WriteString(c.Response)
		}
		if c.Done {
			final = c.Stats
		}
	}
	if err := scanner.Err(); err != nil {
		return "", upstream.Stats{}, err
	}
	return text.String(), final, nil
}
