package commands

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/events"
	"git.home.luguber.info/inful/appforge/internal/forge"
	"git.home.luguber.info/inful/appforge/internal/generate"
	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
	"git.home.luguber.info/inful/appforge/internal/notify"
	"git.home.luguber.info/inful/appforge/internal/pipeline"
	"git.home.luguber.info/inful/appforge/internal/publish"
	"git.home.luguber.info/inful/appforge/internal/staging"
	"git.home.luguber.info/inful/appforge/internal/state"
)

// App holds the collaborators shared by the serve and run commands.
type App struct {
	Config       *config.Config
	Orchestrator *pipeline.Orchestrator
	Recorder     metrics.Recorder
	History      history.Store
	Events       events.Publisher
	Stager       *staging.Stager

	metricsHandler http.Handler
}

// NewApp builds the pipeline and its optional history, events and metrics
// sinks from cfg.
func NewApp(cfg *config.Config) (*App, error) {
	store, err := state.NewJSONStore(cfg.State.Path)
	if err != nil {
		return nil, err
	}

	host, err := forge.NewGitHubClient(cfg.Forge)
	if err != nil {
		return nil, fmt.Errorf("create forge client: %w", err)
	}

	hist, err := openHistory(cfg.History)
	if err != nil {
		return nil, err
	}

	var pub events.Publisher = events.NoopPublisher{}
	if cfg.Events.Enabled {
		np, npErr := events.NewNATSPublisher(cfg.Events)
		if npErr != nil {
			_ = hist.Close()
			return nil, npErr
		}
		pub = np
	}

	app := &App{
		Config:   cfg,
		Recorder: metrics.NoopRecorder{},
		History:  hist,
		Events:   pub,
		Stager:   staging.NewStager(cfg.Staging.Dir),
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		app.Recorder = metrics.NewPrometheusRecorder(reg)
		app.metricsHandler = metrics.HTTPHandler(reg)
	}

	app.Orchestrator = pipeline.New(pipeline.Dependencies{
		State:     store,
		Sync:      publish.NewSynchronizer(host, cfg.Forge),
		Stager:    app.Stager,
		Generator: generate.NewGeminiClient(cfg.Generation),
		Notifier:  notify.NewDispatcher(cfg.Notify),
	},
		pipeline.WithRecorder(app.Recorder),
		pipeline.WithHistory(hist),
		pipeline.WithOutcomePublisher(pub),
		pipeline.WithRepoPrefix(cfg.Pipeline.RepoPrefix),
		pipeline.WithSerializeRounds(cfg.Pipeline.SerializeRounds),
	)
	return app, nil
}

// MetricsHandler returns the /metrics handler, or nil when metrics are off.
func (a *App) MetricsHandler() http.Handler { return a.metricsHandler }

// Close releases the history database and the NATS connection.
func (a *App) Close() {
	a.Events.Close()
	if err := a.History.Close(); err != nil {
		slog.Warn("Failed to close run history", logfields.Error(err))
	}
}

func openHistory(cfg config.HistoryConfig) (history.Store, error) {
	if cfg.Path == "" {
		return history.NoopStore{}, nil
	}
	store, err := history.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
