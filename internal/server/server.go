package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/holdings/internal/domain"
	"github.com/alanyoungcy/holdings/internal/server/handler"
	"github.com/alanyoungcy/holdings/internal/server/middleware"
	"github.com/alanyoungcy/holdings/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	APIKey       string // if empty, authentication is disabled
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit caps write requests per client per RateWindow. Zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
	Entries   *handler.EntryHandler
	Transfers *handler.TransferHandler
	Audit     *handler.AuditHandler
}

// Server is the HTTP + WebSocket API of the valuation engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limit, auth) and attaches the
// WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Positions.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("POST /api/positions", handlers.Positions.OpenPosition)
	mux.HandleFunc("GET /api/positions/{id}/metrics", handlers.Positions.GetMetrics)
	mux.HandleFunc("GET /api/summary", handlers.Positions.GetSummary)

	// Ledger entries.
	mux.HandleFunc("GET /api/positions/{id}/entries", handlers.Entries.ListEntries)
	mux.HandleFunc("POST /api/positions/{id}/entries", handlers.Entries.RecordEntry)
	mux.HandleFunc("DELETE /api/entries/{id}", handlers.Entries.DeleteEntry)
	mux.HandleFunc("GET /api/positions/{id}/audit", handlers.Audit.ListPositionAudit)

	// Transfers and currency exchanges.
	mux.HandleFunc("POST /api/transfers", handlers.Transfers.CreateTransfer)
	mux.HandleFunc("POST /api/exchanges", handlers.Transfers.CreateExchange)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Handler returns the fully wrapped handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
