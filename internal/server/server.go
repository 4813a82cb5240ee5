// Package server exposes the slip service over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/betslip/internal/server/handler"
	"github.com/alanyoungcy/betslip/internal/server/middleware"
	"github.com/alanyoungcy/betslip/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimitRPS and RateLimitBurst size the per-client token bucket.
	// Zero disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// MetricsPath is where Metrics is mounted; "/metrics" when empty.
	MetricsPath string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Metrics may be nil.
type Handlers struct {
	Health   *handler.HealthHandler
	Slip     *handler.SlipHandler
	Fixtures *handler.FixtureHandler
	Metrics  http.Handler
}

// Server is the HTTP + WebSocket API server for the bet slip.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (request id, logging, CORS, auth, rate limit) and
// attaches the WebSocket hub when one is given. observer may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, observer middleware.Observer, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Slip.
	mux.HandleFunc("GET /api/slip", handlers.Slip.GetSlip)
	mux.HandleFunc("DELETE /api/slip", handlers.Slip.ClearSlip)
	mux.HandleFunc("POST /api/slip/selections", handlers.Slip.AddSelection)
	mux.HandleFunc("DELETE /api/slip/selections", handlers.Slip.RemoveSelection)
	mux.HandleFunc("GET /api/slip/selections/selected", handlers.Slip.IsSelected)
	mux.HandleFunc("PUT /api/slip/stake", handlers.Slip.SetStake)

	// Sharing.
	mux.HandleFunc("POST /api/slip/share", handlers.Slip.Share)
	mux.HandleFunc("POST /api/slip/import/{code}", handlers.Slip.Import)
	mux.HandleFunc("GET /api/shared/{code}", handlers.Slip.GetShared)

	// Validation round.
	mux.HandleFunc("POST /api/slip/validate", handlers.Slip.Validate)
	mux.HandleFunc("GET /api/slip/review", handlers.Slip.GetReview)
	mux.HandleFunc("POST /api/slip/confirm", handlers.Slip.Confirm)
	mux.HandleFunc("POST /api/slip/cancel", handlers.Slip.Cancel)

	// Fixtures and odds.
	mux.HandleFunc("GET /api/match-info", handlers.Fixtures.MatchInfo)
	mux.HandleFunc("GET /api/fixtures/{id}/odds", handlers.Fixtures.Odds)
	mux.HandleFunc("GET /api/odds/format", handlers.Fixtures.FormatOdds)

	if handlers.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, handlers.Metrics)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger, observer)(h)
	h = middleware.RequestID()(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

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
