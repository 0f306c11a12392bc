package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/queue"
	"git.home.luguber.info/inful/appforge/internal/server/httpserver"
	"git.home.luguber.info/inful/appforge/internal/staging"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}
	if err := cfg.RequireCredentials(true); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunServe(ctx, cfg)
}

// RunServe starts the intake server, the worker queue and the staging
// sweeper, and blocks until ctx is done.
func RunServe(ctx context.Context, cfg *config.Config) error {
	app, err := NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer app.Close()

	// Runs outlive the request context and are drained on shutdown.
	q := queue.New(cfg.Queue, app.Orchestrator.Handle, app.Recorder)
	q.Start(context.Background())

	sweeper, err := staging.NewSweeper(app.Stager.Root(), cfg.Staging.MaxAge)
	if err != nil {
		return err
	}
	if err := sweeper.Start(cfg.Staging.SweepInterval); err != nil {
		return err
	}

	opts := httpserver.Options{
		Recorder:       app.Recorder,
		MetricsHandler: app.MetricsHandler(),
	}
	if cfg.History.Path != "" {
		opts.History = app.History
	}
	srv := httpserver.New(cfg.Server, httpserver.NewQueueRuntime(q), opts)
	if err := srv.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		_ = q.Stop(stopCtx)
		_ = sweeper.Stop(stopCtx)
		return err
	}

	slog.Info("appforge serving, waiting for shutdown signal...",
		logfields.Endpoint(srv.Addr()),
		slog.Int("workers", cfg.Queue.Workers))
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	var firstErr error
	if err := srv.Stop(stopCtx); err != nil {
		firstErr = err
	}
	if err := q.Stop(stopCtx); err != nil {
		slog.Warn("Build queue did not drain before timeout", logfields.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := sweeper.Stop(stopCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("shutdown: %w", firstErr)
	}
	slog.Info("appforge stopped")
	return nil
}
