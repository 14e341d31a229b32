package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyvault/internal/domain"
	"github.com/alanyoungcy/polyvault/internal/server/handler"
	"github.com/alanyoungcy/polyvault/internal/server/middleware"
	"github.com/alanyoungcy/polyvault/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the number of requests per RateWindow allowed per client
	// IP. Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration

	// WriteTimeout bounds one response, including any confirmation waits
	// behind it. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration
}

// DefaultWriteTimeout is used when Config.WriteTimeout is zero.
const DefaultWriteTimeout = 5 * time.Minute

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Vault   *handler.VaultHandler
	Metrics http.Handler
}

// Server is the HTTP + WebSocket front end of a vault session.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil, in which case an in-process limiter is used when
// rate limiting is configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	// Health, metrics and the socket stay outside auth and rate limiting.
	public := http.NewServeMux()
	public.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		public.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		public.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/session", handlers.Vault.GetSession)
	api.HandleFunc("PUT /api/session/vault", handlers.Vault.BindVault)
	api.HandleFunc("POST /api/vault/resolve", handlers.Vault.Resolve)
	api.HandleFunc("POST /api/vault/push", handlers.Vault.Push)
	api.HandleFunc("POST /api/vault/pull", handlers.Vault.Pull)
	api.HandleFunc("POST /api/vault/settle", handlers.Vault.Settle)
	api.HandleFunc("POST /api/vault/check", handlers.Vault.Check)
	api.HandleFunc("GET /api/actions", handlers.Vault.ListActions)

	var protected http.Handler = api
	if cfg.RateLimit > 0 {
		if limiter == nil {
			limiter = middleware.NewLocalLimiter()
		}
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		protected = middleware.RateLimit(limiter, cfg.RateLimit, window)(protected)
	}
	protected = middleware.Auth(cfg.APIKey)(protected)
	public.Handle("/api/", protected)

	var h http.Handler = public
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
