// Package apiserver exposes attribot's operational HTTP surface: health and
// readiness probes, Prometheus metrics, and read-only views of the delivery
// audit trail and the active routes.
package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/attribot/attribot/internal/config"
	"github.com/attribot/attribot/internal/logging"
	"github.com/attribot/attribot/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker is an interface for checking component readiness.
type ReadinessChecker interface {
	IsReady() bool
}

// NoOpReadinessChecker is a ReadinessChecker that always reports ready.
type NoOpReadinessChecker struct{}

// IsReady always returns true for the no-op checker.
func (n *NoOpReadinessChecker) IsReady() bool { return true }

// RoutesProvider returns the currently active routes config. May return nil
// before the first load.
type RoutesProvider func() *config.RoutesFile

// Server handles operational HTTP requests. It implements
// lifecycle.Component.
type Server struct {
	port             int
	server           *http.Server
	router           *http.ServeMux
	logger           *logging.Logger
	deliveries       *store.Store // nil when auditing is disabled
	readinessChecker ReadinessChecker
	routesProvider   RoutesProvider
	registry         *prometheus.Registry
}

// New creates the API server. deliveries may be nil; routesProvider may
// return nil; readinessChecker must not be nil.
func New(port int, deliveries *store.Store, readinessChecker ReadinessChecker, routesProvider RoutesProvider, registry *prometheus.Registry) *Server {
	s := &Server{
		port:             port,
		router:           http.NewServeMux(),
		logger:           logging.GetLogger("api"),
		deliveries:       deliveries,
		readinessChecker: readinessChecker,
		routesProvider:   routesProvider,
		registry:         registry,
	}

	s.registerHandlers()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.corsMiddleware(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// registerHandlers registers all HTTP handlers.
func (s *Server) registerHandlers() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/ready", s.handleReady)

	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.router.HandleFunc("/api/v1/deliveries", s.withMethod(http.MethodGet, s.handleDeliveries))
	s.router.HandleFunc("/api/v1/deliveries/stats", s.withMethod(http.MethodGet, s.handleDeliveryStats))
	s.router.HandleFunc("/api/v1/routes", s.withMethod(http.MethodGet, s.handleRoutes))
}

// Start implements the lifecycle.Component interface.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server on port %d", s.port)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()

	s.logger.Info("API server listening on port %d", s.port)
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown API server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

// Name implements lifecycle.Component.
func (s *Server) Name() string { return "api-server" }

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.corsMiddleware(s.router) }
