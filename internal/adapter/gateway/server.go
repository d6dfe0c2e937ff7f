package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"courier-ai/internal/infra/config"
	"courier-ai/internal/infra/middleware"
)

// Server is the HTTP front of the gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the server with security headers and per-IP rate
// limiting wrapped around the API handler. ctx bounds the rate limiter's
// cleanup goroutine.
func NewServer(ctx context.Context, cfg config.ServerConfig, handler *Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	handler.Routes(mux)

	var root http.Handler = mux
	root = middleware.RateLimit(ctx, cfg.RequestsPerMin, cfg.Burst)(root)
	root = middleware.SecurityHeaders(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Turns block on two model calls plus tool I/O.
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
		logger: logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
