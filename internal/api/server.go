// Package api serves the agent's HTTP surface.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config holds API server configuration
type Config struct {
	Listen string
	// MaxUpload caps the request body of /upload-algo/ in bytes. Zero means
	// no limit.
	MaxUpload       int64
	ShutdownTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	jobs      JobRunner
	logs      LogReader
	workspace Workspace
	sampler   UsageSampler
	events    EventStream
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// done is closed when shutdown begins so long-lived streams return.
	done      chan struct{}
	closeDone sync.Once
}

// New creates a new API server instance
func New(config Config, jobs JobRunner, logs LogReader, ws Workspace, sampler UsageSampler, hub EventStream, logger *slog.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		config:    config,
		jobs:      jobs,
		logs:      logs,
		workspace: ws,
		sampler:   sampler,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Shutdown does not cancel in-flight request contexts.
	s.server.RegisterOnShutdown(s.stopStreams)

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// stopStreams ends every open event stream. Safe to call more than once.
func (s *Server) stopStreams() {
	s.closeDone.Do(func() { close(s.done) })
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health/", s.handleHealth)
	r.Get("/resource-usage/", s.handleResourceUsage)
	r.Get("/logs/", s.handleLogs)
	r.Get("/status/", s.handleStatus)
	r.Get("/list-files/", s.handleListFiles)
	r.Get("/events/", s.handleEvents)

	r.Post("/exec/", s.handleExec)
	r.Post("/interrupt/", s.handleInterrupt)
	r.Post("/clear-workspace/", s.handleClearWorkspace)
	r.Post("/upload-algo/", s.handleUploadAlgo)

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
