package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/config"
	"github.com/textgate/textgate/internal/server"
	"github.com/textgate/textgate/internal/service"
	"github.com/textgate/textgate/internal/store"
	"github.com/textgate/textgate/internal/telemetry"
	"github.com/textgate/textgate/internal/upstream"
)

const banner = `
 _____ _____ __  __ _____ ___   _  _____ ___
|_   _| ____|\ \/ /|_   _/ __| /_\|_   _| __|
  | | | _|    >  <   | || (_ |/ _ \ | | | _|
  |_| |___|  /_/\_\  |_| \___/_/ \_\|_| |___|
`

func newServeCmd() *cobra.Command {
	var (
		port        int
		host        string
		upstreamURL string
		dev         bool
		detach      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Textgate gateway server",
		Long:  "Start the HTTP gateway that authenticates requests and relays them to the text-generation backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if detach {
				return runDetached()
			}
			return runServe(host, port, upstreamURL, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (default from config, 8090)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (default from config, 0.0.0.0)")
	cmd.Flags().StringVar(&upstreamURL, "upstream", "", "Text-generation backend URL (default from config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run the server in the background")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

// runDetached re-executes "serve" as a background process, logging to the
// data directory.
func runDetached() error {
	logPath := logFilePath()
	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve"}
	for _, a := range os.Args[2:] {
		if a != "-d" && a != "--detach" {
			args = append(args, a)
		}
	}

	child := exec.Command(os.Args[0], args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start background server: %w", err)
	}
	if err := writePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	fmt.Printf("Server started in the background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logPath)
	fmt.Println("  Stop with: textgate stop")
	return nil
}

func runServe(host string, port int, upstreamURL string, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg := loadConfig()
	if host == "" {
		host = cfg.Server.Host
	}
	if host == "" {
		host = "0.0.0.0"
	}
	if port == 0 {
		port = cfg.Server.Port
	}
	if port == 0 {
		port = 8090
	}
	if upstreamURL == "" {
		upstreamURL = cfg.Upstream.URL
	}
	if upstreamURL == "" {
		upstreamURL = "http://localhost:11434"
	}

	logger := newLogger(cfg, dev)

	// 1. Entity store
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	// The server closes the store after draining connections.
	logger.Info("store initialized", "driver", st.Driver())

	// 2. Upstream client
	up := upstream.New(upstreamURL, parseDuration(cfg.Upstream.Timeout, upstream.DefaultTimeout))
	if err := up.Ping(context.Background()); err != nil {
		logger.Warn("text-generation backend unreachable at startup", "url", upstreamURL, "error", err)
	} else {
		logger.Info("text-generation backend reachable", "url", upstreamURL)
	}

	// 3. Services
	secret, err := jwtSecret(cfg, false)
	if err != nil {
		st.Close()
		return err
	}
	issuer := auth.NewTokenIssuer(secret, parseDuration(cfg.Auth.JWTExpiry, 30*time.Minute))
	svcs := server.Services{
		Auth:  service.NewAuthService(st, issuer, cfg.Auth.BcryptCost),
		Users: service.NewUserService(st, cfg.Auth.BcryptCost),
		Keys:  service.NewAPIKeyService(st),
		Usage: service.NewUsageService(st, logger),
	}

	// 4. Bootstrap admin
	if err := bootstrapAdmin(cfg, svcs.Users, logger); err != nil {
		logger.Warn("bootstrap admin failed", "error", err)
	}

	// 5. Telemetry
	tracker := newTracker(cfg, st)
	if tracker != nil {
		telemetry.PrintNotice()
	}
	tracker.Start()
	defer tracker.Shutdown()

	// 6. Build and start HTTP server
	srvCfg := server.Config{
		Host:               host,
		Port:               port,
		ShutdownTimeout:    parseDuration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:        cfg.Server.CORS.Origins,
		LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
		Version:            versionString(),
	}
	if len(srvCfg.CORSOrigins) == 0 {
		srvCfg.CORSOrigins = []string{"*"}
	}
	if srvCfg.LoginRatePerMinute == 0 {
		srvCfg.LoginRatePerMinute = 10
	}

	srv := server.New(srvCfg, st, up, svcs, logger)

	fmt.Printf("→ Textgate %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Backend:    %s\n", upstreamURL)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, port)
	fmt.Println()

	if err := writePID(os.Getpid()); err == nil {
		defer removePID()
	}

	return srv.ListenAndServe()
}

// newLogger builds the process logger per the logging config.
func newLogger(cfg *config.YAMLConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// bootstrapAdmin materializes the configured admin account when no admin
// exists yet. The password comes from config or TEXTGATE_BOOTSTRAP_PASSWORD;
// without one, bootstrap is skipped so no account with a known password ever
// appears implicitly.
func bootstrapAdmin(cfg *config.YAMLConfig, users *service.UserService, logger *slog.Logger) error {
	boot := cfg.Auth.Bootstrap
	password := boot.Password
	if password == "" {
		password = os.Getenv("TEXTGATE_BOOTSTRAP_PASSWORD")
	}
	if boot.Username == "" || password == "" {
		logger.Info("no bootstrap admin configured - create one with: textgate admin create")
		return nil
	}

	created, err := users.EnsureAdmin(context.Background(), boot.Username, boot.Email, password)
	if err != nil {
		return err
	}
	if created {
		logger.Info("bootstrap admin created", "username", boot.Username)
	}
	return nil
}

// newTracker builds the telemetry tracker, or nil when disabled.
func newTracker(cfg *config.YAMLConfig, st *store.Store) *telemetry.Tracker {
	if cfg.Telemetry.Disabled {
		return nil
	}
	ctx := context.Background()
	return telemetry.New(ctx, st, func() telemetry.Properties {
		users, _ := st.CountUsers(ctx)
		keys, _ := st.CountAPIKeys(ctx)
		requests, _ := st.CountUsageLogs(ctx)
		return telemetry.Properties{
			Version:     versionString(),
			StoreDriver: st.Driver(),
			Users:       int(users),
			APIKeys:     int(keys),
			Requests:    requests,
			MCPEnabled:  cfg.MCP.Enabled,
		}
	})
}
