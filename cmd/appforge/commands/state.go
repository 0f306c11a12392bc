package commands

import (
	"io"
	"os"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/state"
)

// StateCmd groups the task state subcommands.
type StateCmd struct {
	Get  StateGetCmd  `cmd:"" help:"Print the recorded state of a task"`
	List StateListCmd `cmd:"" help:"Print the recorded state of every task"`
}

// StateGetCmd implements 'state get'.
type StateGetCmd struct {
	Task string `arg:"" help:"Task identifier"`
}

func (s *StateGetCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	return ShowState(os.Stdout, cfg, s.Task)
}

// ShowState writes the recorded TaskState of taskID to w as JSON.
func ShowState(w io.Writer, cfg *config.Config, taskID string) error {
	store, err := state.NewJSONStore(cfg.State.Path)
	if err != nil {
		return err
	}
	st, ok := store.Get(taskID)
	if !ok {
		return derrors.NotFoundError("no state recorded for task").
			WithContext("task", taskID).
			WithContext("path", store.Path()).
			Build()
	}
	return writeJSON(w, st)
}

// StateListCmd implements 'state list'.
type StateListCmd struct{}

func (s *StateListCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	return ListStates(os.Stdout, cfg)
}

// ListStates writes every recorded TaskState, keyed by task id, to w as JSON.
// An absent state file lists as an empty object.
func ListStates(w io.Writer, cfg *config.Config) error {
	store, err := state.NewJSONStore(cfg.State.Path)
	if err != nil {
		return err
	}
	all, err := store.All()
	if err != nil {
		return err
	}
	return writeJSON(w, all)
}
