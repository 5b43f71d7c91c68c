// Package httpapi exposes the gateway over a JSON REST API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/illmade-knight/go-event-gateway/pkg/gateway"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string
	Port int
	// APIPrefix is the base path the API is mounted under, e.g. "/api/v1".
	APIPrefix string
}

// Server runs the REST surface. Middleware passed at construction (e.g. a
// JWT authorizer supplied by the deployment) wraps the API routes.
type Server struct {
	logger     zerolog.Logger
	httpServer *http.Server
	addr       string

	mu         sync.RWMutex
	actualAddr string
}

// NewServer assembles the router and server. metricsReg, when non-nil, is
// served on /metrics outside the API prefix.
func NewServer(
	cfg *ServerConfig,
	gw gateway.Gateway,
	metricsReg *prometheus.Registry,
	logger zerolog.Logger,
	middleware ...func(http.Handler) http.Handler,
) *Server {
	handler := NewHandler(gw, logger)

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/"
	}

	root := chi.NewRouter()
	root.Use(RequestMetadata)
	if metricsReg != nil {
		root.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	}
	root.Route(prefix, func(r chi.Router) {
		for _, m := range middleware {
			r.Use(m)
		}
		r.Post("/event", handler.HandleEvent)
		r.Get("/routing-rules", handler.ListRules)
		r.Post("/routing-rules", handler.CreateRule)
		r.Put("/routing-rules/{id}", handler.UpdateRule)
		r.Delete("/routing-rules/{id}", handler.DeleteRule)
		r.Get("/topic-validations", handler.ListValidations)
		r.Post("/topic-validations", handler.CreateValidation)
		r.Delete("/topic-validations/{id}", handler.DeleteValidation)
		r.Get("/health-check", handler.HealthCheck)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		logger: logger.With().Str("component", "HTTPServer").Logger(),
		addr:   addr,
		httpServer: &http.Server{
			Addr:    addr,
			Handler: root,
		},
	}
}

// Handler returns the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening in a background goroutine and returns once the
// listener is bound.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.actualAddr).Msg("HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualAddr
}

// Shutdown gracefully stops the server, respecting the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.logger.Info().Msg("HTTP server stopped.")
	return nil
}
