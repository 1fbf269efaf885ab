package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/service"
	"github.com/textgate/textgate/internal/upstream"
)

// MCPServer wraps the mcp-go server with textgate-specific tool and resource
// registrations. It exposes the text-generation backend and the gateway's
// usage analytics as MCP tools so AI agents can generate text and inspect
// their own consumption.
//
// The MCP server is launched locally by an operator and talks to the store
// directly; requests run as the operator account, not through HTTP auth.
type MCPServer struct {
	upstream *upstream.Client
	keys     *service.APIKeyService
	usage    *service.UsageService
	operator *model.User
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all textgate tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(up *upstream.Client, keys *service.APIKeyService, usage *service.UsageService, operator *model.User, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		upstream: up,
		keys:     keys,
		usage:    usage,
		operator: operator,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"Textgate Gateway",
		"0.1.0",
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode. This is the primary
// integration path for Claude Code, Claude Desktop, and other MCP clients
// that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode", "operator", s.operator.Username)
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001"). This is suitable for remote MCP clients.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
