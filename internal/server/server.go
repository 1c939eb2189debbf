// Package server hosts the HTTP and WebSocket API of the ledger service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/amby/internal/domain"
	"github.com/alanyoungcy/amby/internal/server/handler"
	"github.com/alanyoungcy/amby/internal/server/middleware"
	"github.com/alanyoungcy/amby/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	// APIKey guards administrative routes. Empty disables the check.
	APIKey      string
	RateLimit   int
	RateWindow  time.Duration
	Limiter     domain.RateLimiter
	Observer    middleware.RequestObserver
	MetricsPath string
}

// Handlers aggregates the route handlers. Snapshots may be nil.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Markets   *handler.MarketHandler
	Transfers *handler.TransferHandler
	Snapshots *handler.SnapshotHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           NewRouter(cfg, h, hub, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the routed handler without binding a listener.
func NewRouter(cfg Config, h Handlers, hub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	admin := middleware.Auth(cfg.APIKey)

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/count", h.Markets.Count)
	mux.Handle("POST /api/markets", admin(http.HandlerFunc(h.Markets.CreateMarket)))
	mux.HandleFunc("GET /api/markets/{id}", h.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/tvl", h.Markets.TotalValueLocked)
	mux.HandleFunc("GET /api/markets/{id}/points", h.Markets.TotalPoints)
	mux.HandleFunc("GET /api/markets/{id}/potential-reward", h.Markets.PotentialReward)
	mux.HandleFunc("GET /api/markets/{id}/window", h.Markets.Window)
	mux.HandleFunc("GET /api/markets/{id}/positions/{account}", h.Markets.Position)

	mux.HandleFunc("POST /api/transfers", h.Transfers.Receive)

	if h.Snapshots != nil {
		mux.Handle("GET /api/snapshots", admin(http.HandlerFunc(h.Snapshots.List)))
		mux.Handle("POST /api/snapshots", admin(http.HandlerFunc(h.Snapshots.Create)))
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.Handle("GET "+metricsPath, promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(handler)
	handler = middleware.Logging(logger, cfg.Observer)(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	return handler
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
