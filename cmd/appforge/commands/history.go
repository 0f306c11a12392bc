package commands

import (
	"context"
	"io"
	"os"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/server/responses"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Task string `arg:"" help:"Task identifier"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	return ShowHistory(context.Background(), os.Stdout, cfg, h.Task)
}

// ShowHistory writes the recorded runs of taskID to w as JSON.
func ShowHistory(ctx context.Context, w io.Writer, cfg *config.Config, taskID string) error {
	if cfg.History.Path == "" {
		return derrors.ConfigError("run history is disabled").
			WithContext("field", "history.path").
			Build()
	}
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	evts, err := store.ByTask(ctx, taskID)
	if err != nil {
		return err
	}
	if len(evts) == 0 {
		return derrors.NotFoundError("no runs recorded for task").WithContext("task", taskID).Build()
	}
	return writeJSON(w, responses.RunsResponse{Task: taskID, Runs: history.GroupRuns(evts)})
}
