package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/appforge/internal/task"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Task string `short:"t" required:"" help:"Build task JSON file" type:"existingfile"`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	t, err := ReadTask(r.Task)
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(false); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer app.Close()

	out := app.Orchestrator.Run(ctx, t)
	if err := writeJSON(os.Stdout, out); err != nil {
		return err
	}
	return out.Err()
}

// ReadTask loads, normalizes and validates a build task file.
func ReadTask(path string) (*task.BuildTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task: %w", err)
	}
	var t task.BuildTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse task %s: %w", path, err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
