// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/statestore/internal/auth"
	"github.com/vyrodovalexey/statestore/internal/config"
	"github.com/vyrodovalexey/statestore/internal/handler"
	"github.com/vyrodovalexey/statestore/internal/middleware"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     *config.Config
	logger     *zap.Logger
	wsHandler  *handler.WebSocketHandler
}

// New creates a new Server serving stores. A nil authenticator disables
// authentication. When the WebSocket stream is enabled the server attaches
// itself as an observer of every store container.
func New(cfg *config.Config, logger *zap.Logger, stores handler.Stores, authenticator auth.Authenticator) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
	}

	s.setupMiddleware(authenticator)
	s.setupRoutes(stores)
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chains. Recovery, request IDs
// and CORS wrap the router so that preflights and unmatched paths get them
// too; metrics, logging and authentication run inside the router where the
// matched route template is known. Authentication sits innermost so that
// rejected requests are still logged and measured.
func (s *Server) setupMiddleware(authenticator auth.Authenticator) {
	cors := middleware.CORSOptions{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			auth.APIKeyHeader,
			middleware.RequestIDHeader,
		},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}

	s.handler = middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.CORS(cors),
	)(s.router)

	var routed []middleware.Middleware
	if s.config.MetricsEnabled {
		routed = append(routed, middleware.Metrics())
	}
	routed = append(routed, middleware.Logging(s.logger))
	if authenticator != nil {
		routed = append(routed, middleware.Auth(authenticator, s.logger))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Chain(routed...)))
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(stores handler.Stores) {
	restHandler := handler.NewRESTHandler(stores, s.logger)
	restHandler.RegisterRoutes(s.router)

	s.router.NotFoundHandler = http.HandlerFunc(restHandler.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(restHandler.MethodNotAllowed)

	if s.config.WebSocketEnabled {
		s.wsHandler = handler.NewWebSocketHandler(s.logger)
		s.wsHandler.RegisterRoutes(s.router)

		stores.Users.Container().AddObserver(s.wsHandler)
		stores.Counter.Container().AddObserver(s.wsHandler)
		stores.Todos.Container().AddObserver(s.wsHandler)
		stores.Session.Container().AddObserver(s.wsHandler)
	}

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Start starts the HTTP server and blocks until it stops. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.Bool("websocket_enabled", s.config.WebSocketEnabled),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Hijacked WebSocket connections are not tracked by http.Server.
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the full HTTP handler: the router wrapped in the outer
// middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}
