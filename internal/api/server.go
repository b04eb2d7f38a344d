// Package api exposes ingest runs over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/alejandroruanova/rowloader/internal/core/services/ingest"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/storage"
)

const defaultMaxUploadBytes = 100 << 20

// Runner is the ingest service as seen by the API
type Runner interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	Flush(ctx context.Context, result *ingest.Result) error
	Sheets() []string
}

// Enqueuer submits tasks to the worker queue
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ResultReader returns results stored by the worker
type ResultReader interface {
	GetResult(ctx context.Context, runID uuid.UUID) (*ingest.Result, error)
}

// HealthCheck reports the state of one dependency
type HealthCheck func(ctx context.Context) map[string]interface{}

// Options wires the server. Only Runner is required; routes whose
// collaborator is missing answer 503.
type Options struct {
	Runner         Runner
	Storage        storage.Storage
	Queue          Enqueuer
	Results        ResultReader
	Health         map[string]HealthCheck
	MaxRetries     int
	MaxUploadBytes int64
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Server is the HTTP server for ingest runs
type Server struct {
	opts   Options
	router *chi.Mux
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a server with its routes installed
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}

	s := &Server{
		opts:   opts,
		router: chi.NewRouter(),
		logger: opts.Logger.With(slog.String("component", "api")),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/sheets", s.handleListSheets)

	s.router.Route("/runs", func(r chi.Router) {
		r.Post("/", s.handleEnqueueRun)
		r.Post("/sync", s.handleSyncRun)
		r.Get("/{runID}", s.handleGetRun)
	})

	s.router.Post("/sheets/{sheet}/{action}/upload", s.handleUpload)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.opts.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting http server", slog.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
