package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cdreetz/crebAI/api"
	"github.com/cdreetz/crebAI/api/middleware"
	"github.com/cdreetz/crebAI/config"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/metrics"
	"github.com/cdreetz/crebAI/tasks/registry"
	"github.com/cdreetz/crebAI/tasks/store"
)

// Server wraps http.Server with graceful shutdown capabilities
type Server struct {
	httpServer *http.Server
	config     *config.Config
	logger     *logger.Logger
}

// Dependencies contains everything the HTTP surface needs.
type Dependencies struct {
	Submitter api.TaskSubmitter
	Store     store.TaskStore
	Streams   api.ChatStreamOpener
	Models    *llm.Registry
	Registry  *registry.HandlerRegistry
	Metrics   *metrics.Metrics
	Config    *config.Config
	Logger    *logger.Logger
}

// New creates a new server with all HTTP configuration
func New(deps Dependencies) *Server {
	handler := newRouter(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:        deps.Config.Address(),
			Handler:     handler,
			ReadTimeout: 15 * time.Second,
			// No WriteTimeout: SSE responses stay open as long as the
			// model keeps producing.
			IdleTimeout: 60 * time.Second,
		},
		config: deps.Config,
		logger: deps.Logger,
	}
}

// newRouter creates and configures the HTTP router with all routes and middleware
func newRouter(deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Task submission and inspection
	mux.HandleFunc("/api/v1/text/generate", api.NewGenerateHandler(deps.Submitter, deps.Logger))
	mux.HandleFunc("/api/v1/chat", api.NewChatHandler(deps.Submitter, deps.Logger))
	mux.HandleFunc("/api/v1/tasks", api.NewTaskListHandler(deps.Store, deps.Logger))
	mux.HandleFunc("/api/v1/tasks/", api.NewTaskStatusHandler(deps.Store, deps.Logger))

	// Streaming
	mux.HandleFunc("/api/v1/chat/stream", api.NewChatStreamHandler(deps.Streams, deps.Logger))

	// Model management
	mux.HandleFunc("/api/v1/models", api.NewModelListHandler(deps.Models, deps.Logger))
	mux.HandleFunc("/api/v1/models/", api.NewModelActionHandler(deps.Models, deps.Logger))

	// Operational endpoints
	healthHandler := api.NewHealthHandler(deps.Config, deps.Registry, deps.Logger)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/api/v1/health", healthHandler)
	mux.Handle("/metrics", deps.Metrics.Handler())

	return applyMiddleware(mux, deps.Logger)
}

// applyMiddleware wraps the handler with all necessary middleware
func applyMiddleware(handler http.Handler, lg *logger.Logger) http.Handler {
	// Apply middleware in reverse order (last applied = first executed)
	wrapped := handler

	wrapped = middleware.LoggingMiddleware(lg)(wrapped)

	return wrapped
}

// Start starts the server and blocks until shutdown
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.logger.Info("Server starting", map[string]any{
			"address": s.config.Address(),
		})

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	<-stop
	s.logger.Info("Shutting down server")

	return s.shutdown()
}

// shutdown gracefully shuts down the server
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	s.logger.Info("Server shutdown complete")
	return nil
}
