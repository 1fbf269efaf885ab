package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// textgate://models — models available on the backend
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			"textgate://models",
			"Available Models",
			mcp.WithResourceDescription(
				"The models available on the text-generation backend, "+
					"as reported by its tags endpoint.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleModelsResource,
	)

	// -------------------------------------------------------------------
	// textgate://usage — the operator account's usage summary
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			"textgate://usage",
			"Usage Summary",
			mcp.WithResourceDescription(
				"Aggregate usage statistics for the operator account: total "+
					"requests, total tokens, and per-endpoint breakdowns.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleUsageResource,
	)
}

// handleModelsResource returns the backend's model list verbatim.
func (s *MCPServer) handleModelsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	resp, err := s.upstream.Models(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model list: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "textgate://models",
			MIMEType: "application/json",
			Text:     string(body),
		},
	}, nil
}

// handleUsageResource returns the operator's aggregate usage.
func (s *MCPServer) handleUsageResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	stats, err := s.usage.Stats(ctx, s.operator.ID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("load usage stats: %w", err)
	}

	b, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal usage stats: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "textgate://usage",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
