// Package server hosts the observability and administration endpoints of the
// routing subsystem. Routed traffic itself never passes through this server;
// it only exposes health, stats and recovery operations plus Prometheus
// metrics.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/agentlane/relay/monitoring"
	"github.com/agentlane/relay/routing"
)

// Server serves the routing API and metrics over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *zap.SugaredLogger
}

// New creates a server for the given router. The monitor may be nil, in which
// case no metrics endpoint is registered.
func New(port int, router *routing.Router, monitor *monitoring.Monitor, logger *zap.SugaredLogger) *Server {
	muxRouter := mux.NewRouter()
	routing.NewAPIHandler(router, logger).Register(muxRouter)
	if monitor != nil {
		muxRouter.Handle("/metrics", monitor.Handler()).Methods(http.MethodGet)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		Debug:          false,
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: corsMiddleware.Handler(muxRouter),
		},
		logger: logger,
	}
}

// Address returns the address the server listens on.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

// Start listens and serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.logger.Infow("Starting server", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the composed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
