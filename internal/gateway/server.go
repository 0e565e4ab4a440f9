// Package gateway forwards operator calls to agent nodes by address and
// keeps the node registry. It holds no agent state of its own.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/nodeagent/internal/nodeclient"
	"github.com/mattjoyce/nodeagent/internal/registry"
)

// Registry is the node address book.
type Registry interface {
	Add(ctx context.Context, n registry.Node) (registry.Node, error)
	Get(ctx context.Context, name string) (registry.Node, error)
	List(ctx context.Context) ([]registry.Node, error)
	Remove(ctx context.Context, name string) error
}

var _ Registry = (*registry.Store)(nil)

// Config holds gateway configuration.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	// FleetConcurrency bounds simultaneous node probes in /fleet/status.
	FleetConcurrency int
	// MaxUploadMemory is how much of a multipart upload is kept in memory
	// before spilling to a temp file.
	MaxUploadMemory int64
}

// Server is the gateway HTTP server.
type Server struct {
	config     Config
	registry   Registry
	clientOpts []nodeclient.Option
	logger     *slog.Logger
	server     *http.Server
}

// New creates a gateway. clientOpts apply to every node client it builds.
func New(config Config, reg Registry, logger *slog.Logger, clientOpts ...nodeclient.Option) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if config.FleetConcurrency <= 0 {
		config.FleetConcurrency = 8
	}
	if config.MaxUploadMemory <= 0 {
		config.MaxUploadMemory = 32 << 20
	}
	return &Server{
		config:     config,
		registry:   reg,
		clientOpts: clientOpts,
		logger:     logger,
	}
}

// Handler returns the routed handler.
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

	s.logger.Info("gateway starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("gateway error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/check-node-status", s.handleCheckNodeStatus)
	r.Get("/get-resource-usage", s.handleGetResourceUsage)
	r.Get("/get-logs", s.handleGetLogs)
	r.Get("/list-files", s.handleListFiles)
	r.Post("/clear-workspace", s.handleClearWorkspace)
	r.Post("/upload-algo", s.handleUploadAlgo)
	r.Post("/exec-command", s.handleExecCommand)
	r.Post("/interrupt-process", s.handleInterruptProcess)

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", s.handleListNodes)
		r.Post("/", s.handleAddNode)
		r.Delete("/{name}", s.handleRemoveNode)
	})
	r.Get("/fleet/status", s.handleFleetStatus)

	return r
}

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
