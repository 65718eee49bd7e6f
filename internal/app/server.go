package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"videohub/internal/app/health"
	"videohub/internal/app/middleware"
	"videohub/internal/app/routes"
	"videohub/internal/cfg"
	"videohub/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Mount is a domain handler that registers its own routes.
type Mount interface {
	Register(r gin.IRouter)
}

// Server is the HTTP server that handles all incoming requests.
// It acts as the transport layer, delegating all business logic to the mounted handlers.
type Server struct {
	config     *cfg.Config
	provider   *Provider
	httpServer *http.Server
	router     *gin.Engine
	logger     logger.Logger
}

// NewServer creates the HTTP server over the provider's infrastructure and
// the given domain handlers.
func NewServer(provider *Provider, mounts ...Mount) *Server {
	s := &Server{
		config:   provider.Config,
		provider: provider,
		logger:   provider.Infra.Logger,
	}

	s.setupRoutes(mounts)
	s.setupHTTPServer()

	s.logger.Info(context.Background(), "HTTP server created successfully")
	return s
}

// setupRoutes configures all HTTP routes for the application.
func (s *Server) setupRoutes(mounts []Mount) {
	if s.config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(s.config.Observability.ServiceName))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(s.logger))

	routes.SetupInfra(r, health.NewChecker(s.logger, s.dependencies()...), s.provider.Infra.MetricsHandler)

	for _, m := range mounts {
		m.Register(r)
	}

	s.router = r
}

func (s *Server) dependencies() []health.Dependency {
	infra := s.provider.Infra
	var deps []health.Dependency
	if infra.DB != nil {
		deps = append(deps, health.Dependency{Name: "database", Pinger: infra.DB})
	}
	if infra.Cache != nil {
		deps = append(deps, health.Dependency{Name: "cache", Pinger: infra.Cache})
	}
	if infra.Blobs != nil {
		deps = append(deps, health.Dependency{Name: "storage", Pinger: infra.Blobs})
	}
	if infra.Supervisor != nil {
		deps = append(deps, health.Dependency{Name: "rabbitmq", Pinger: infra.Supervisor})
	}
	return deps
}

// setupHTTPServer creates the underlying HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:         ":" + s.config.HTTPServer.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.HTTPServer.ReadTimeout,
		WriteTimeout: s.config.HTTPServer.WriteTimeout,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it shuts down.
func (s *Server) Run() error {
	s.logger.Info(context.Background(), "HTTP server listening",
		logger.Field{Key: "addr", Value: s.httpServer.Addr})

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
// Infrastructure resources are managed separately by the Provider.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
	}

	s.logger.Info(ctx, "HTTP server shutdown complete")
	return nil
}
