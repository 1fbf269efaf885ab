package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/textgate/textgate/internal/mcp"
	"github.com/textgate/textgate/internal/service"
	"github.com/textgate/textgate/internal/upstream"
)

func newMCPCmd() *cobra.Command {
	var (
		user        string
		transport   string
		port        int
		upstreamURL string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server",
		Long: `Run a Model Context Protocol server exposing the gateway's models,
generation, and usage analytics as tools for AI agents.

The server talks to the store directly and attributes all activity to the
operator account given by --user.`,
		Example: `  textgate mcp --user admin
  textgate mcp --user admin --transport http --port 3001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(user, transport, port, upstreamURL)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username or email of the operator account (required)")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "Port for the http transport")
	cmd.Flags().StringVar(&upstreamURL, "upstream", "", "Backend base URL (default from config, then http://localhost:11434)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runMCP(login, transport string, port int, upstreamURL string) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown transport %q (use stdio or http)", transport)
	}

	cfg := loadConfig()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	operator, err := findUser(context.Background(), st, login)
	if err != nil {
		return err
	}
	if !operator.IsActive {
		return fmt.Errorf("operator account %q is deactivated", operator.Username)
	}

	if upstreamURL == "" {
		upstreamURL = cfg.Upstream.URL
	}
	if upstreamURL == "" {
		upstreamURL = "http://localhost:11434"
	}
	up := upstream.New(upstreamURL, parseDuration(cfg.Upstream.Timeout, upstream.DefaultTimeout))

	// stdio owns stdout for the protocol stream, so logs go to stderr.
	logger := newLogger(cfg, false)

	srv := mcp.NewMCPServer(
		up,
		service.NewAPIKeyService(st),
		service.NewUsageService(st, logger),
		operator,
		logger,
	)

	if transport == "http" {
		addr := fmt.Sprintf(":%d", port)
		logger.Info("starting MCP server", "transport", "http", "addr", addr, "operator", operator.Username)
		return srv.ServeHTTP(addr)
	}
	return srv.ServeStdio()
}
