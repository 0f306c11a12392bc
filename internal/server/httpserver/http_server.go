// Package httpserver wires the appforge HTTP endpoints onto one listener.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
	"git.home.luguber.info/inful/appforge/internal/server/handlers"
	smw "git.home.luguber.info/inful/appforge/internal/server/middleware"
)

// Runtime is the queue surface the server needs.
type Runtime interface {
	handlers.Enqueuer
	handlers.RuntimeInterface
	handlers.JobLister
}

// Options carries the optional endpoints.
type Options struct {
	Recorder       metrics.Recorder
	MetricsHandler http.Handler           // nil disables /metrics
	History        handlers.HistoryReader // nil disables /runs/{task}
}

// Server serves build intake, liveness, health, jobs, metrics and run history.
type Server struct {
	cfg          config.ServerConfig
	httpServer   *http.Server
	handler      http.Handler
	errorAdapter *derrors.HTTPErrorAdapter

	mu   sync.Mutex
	addr string
}

// New constructs the server and its routes.
func New(cfg config.ServerConfig, runtime Runtime, opts Options) *Server {
	s := &Server{
		cfg:          cfg,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}

	build := handlers.NewBuildHandlers(runtime, cfg, opts.Recorder)
	monitoring := handlers.NewMonitoringHandlers(runtime)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/build", build.HandleBuild)
	mux.HandleFunc("GET /{$}", monitoring.HandleRoot)
	mux.HandleFunc("GET /health", monitoring.HandleHealthCheck)
	mux.HandleFunc("GET /jobs", handlers.NewJobHandlers(runtime).HandleJobs)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}
	if opts.History != nil {
		mux.HandleFunc("GET /runs/{task}", handlers.NewRunHandlers(opts.History).HandleRuns)
	}

	s.handler = smw.Chain(slog.Default(), s.errorAdapter)(mux)
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listen address and serves in the background. Binding
// happens synchronously so an occupied port fails fast.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http startup failed: listen %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", logfields.Error(err))
		}
	}()
	slog.Info("HTTP server started", slog.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}
