package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/geotrack/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/geotrack/internal/adapters/web/middleware"
	web "github.com/lcalzada-xor/geotrack/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
)

// Server exposes the operations surface over HTTP and WebSocket.
type Server struct {
	Addr      string
	Service   ports.LocationService
	WSManager *web.WSManager

	// ControlLimiter throttles start/stop calls per client; nil disables it.
	ControlLimiter *middleware.RateLimiter

	LocationHandler *handlers.LocationHandler
	AuditHandler    *handlers.AuditHandler
	srv             *http.Server
}

// NewServer creates a new web server. auditService may be nil, in which case
// the audit endpoint is not routed.
func NewServer(addr string, service ports.LocationService, auditService ports.AuditService, ws *web.WSManager) *Server {
	s := &Server{
		Addr:            addr,
		Service:         service,
		WSManager:       ws,
		LocationHandler: handlers.NewLocationHandler(service),
	}
	if auditService != nil {
		s.AuditHandler = handlers.NewAuditHandler(auditService)
	}
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(SetupRoutes(s), "geotrack-server")
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown implementation
	go func() {
		<-ctx.Done()
		slog.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("web server shutdown failed", "error", err)
		}
		if s.WSManager != nil {
			s.WSManager.Close()
		}
		if s.ControlLimiter != nil {
			s.ControlLimiter.Stop()
		}
	}()

	slog.Info("web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
