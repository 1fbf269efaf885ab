package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/textgate/textgate/internal/handler"
	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/openapi"
	"github.com/textgate/textgate/internal/server/middleware"
	"github.com/textgate/textgate/internal/service"
	"github.com/textgate/textgate/internal/store"
	"github.com/textgate/textgate/internal/upstream"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host               string
	Port               int
	ShutdownTimeout    time.Duration
	CORSOrigins        []string
	LoginRatePerMinute int
	Version            string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8090,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		LoginRatePerMinute: 10,
		Version:            "dev",
	}
}

// Services bundles the service layer the routes are wired to.
type Services struct {
	Auth  *service.AuthService
	Users *service.UserService
	Keys  *service.APIKeyService
	Usage *service.UsageService
}

// Server is the top-level HTTP server for textgate. It owns the Chi router,
// the entity store, the upstream client, and the service layer.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	upstream   *upstream.Client
	svcs       Services
	httpServer *http.Server
	logger     *slog.Logger
	openapiDoc []byte
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, up *upstream.Client, svcs Services, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		upstream: up,
		svcs:     svcs,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	// The API surface is static, so the description is marshaled once.
	doc := openapi.Document(fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port), s.cfg.Version)
	if raw, err := json.Marshal(doc); err == nil {
		s.openapiDoc = raw
	}

	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Unauthenticated surface ---
	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", s.handleOpenAPI)

	authHandler := handler.NewAuthHandler(s.svcs.Auth, s.svcs.Users)
	userHandler := handler.NewUserHandler(s.svcs.Users)
	keyHandler := handler.NewKeyHandler(s.svcs.Keys)
	usageHandler := handler.NewUsageHandler(s.svcs.Usage)
	proxyHandler := handler.NewProxyHandler(s.upstream, s.logger)

	// Credential endpoints are open but throttled per IP against brute force.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.LoginRatePerMinute))
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
	})

	// --- Authenticated surface ---
	// Usage capture sits inside Authenticate so only attributed requests
	// are metered.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(s.svcs.Auth))
		r.Use(middleware.Usage(s.svcs.Usage))

		r.Route("/api/auth", func(r chi.Router) {
			r.Get("/me", authHandler.Me)
			r.Put("/me", authHandler.UpdateMe)

			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleAdmin))
				r.Get("/", userHandler.List)
				r.Get("/{id}", userHandler.Get)
				r.Put("/{id}", userHandler.Update)
				r.Delete("/{id}", userHandler.Delete)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.With(middleware.RequirePermission("api_keys", "write")).
					Post("/", keyHandler.Create)
				r.With(middleware.RequirePermission("api_keys", "read")).
					Get("/", keyHandler.List)
				r.With(middleware.RequirePermission("api_keys", "write")).
					Put("/{id}", keyHandler.Update)
				r.With(middleware.RequirePermission("api_keys", "delete")).
					Delete("/{id}", keyHandler.Delete)
			})

			r.Get("/usage/stats", usageHandler.Stats)
			r.Get("/usage/recent", usageHandler.Recent)
		})

		r.With(middleware.RequirePermission("generate", "write")).
			Post("/api/generate", proxyHandler.Generate)
		r.With(middleware.RequirePermission("chat", "write")).
			Post("/api/chat", proxyHandler.Chat)
		r.With(middleware.RequirePermission("models", "read")).
			Get("/api/models", proxyHandler.Models)
	})

	s.router = r
}

// handleRoot reports the service identity.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
		"name":    "textgate",
		"version": s.cfg.Version,
		"docs":    "/openapi.json",
	})
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

// handleReadyz is a readiness probe. Returns 200 when the store and the
// text-generation backend are both reachable, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string)

	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["store"] = "ok"
	}

	if err := s.upstream.Ping(r.Context()); err != nil {
		checks["upstream"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["upstream"] = "ok"
	}

	httpStatus := http.StatusOK
	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
		"status": status,
		"checks": checks,
	})
}

// handleOpenAPI serves the API description built at startup.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.openapiDoc) //nolint:errcheck
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // streaming generations are slow
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("close store", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
