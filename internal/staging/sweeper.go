package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/appforge/internal/logfields"
)

// Sweeper periodically removes run directories older than a maximum age.
type Sweeper struct {
	scheduler gocron.Scheduler
	root      string
	maxAge    time.Duration
	now       func() time.Time
}

// NewSweeper creates a sweeper for root. Call Start to begin sweeping.
func NewSweeper(root string, maxAge time.Duration) (*Sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Sweeper{scheduler: s, root: root, maxAge: maxAge, now: time.Now}, nil
}

// Start schedules the sweep at interval and starts the scheduler.
func (s *Sweeper) Start(interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { _, _ = s.Sweep() }),
		gocron.WithName("staging-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep job: %w", err)
	}
	slog.Info("Starting staging sweeper", logfields.Path(s.root), slog.Duration("interval", interval))
	s.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.scheduler.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep removes expired run directories and returns how many were removed.
// Per-task directories are kept so a concurrent Stage never loses its parent.
func (s *Sweeper) Sweep() (int, error) {
	tasks, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, t := range tasks {
		if !t.IsDir() {
			continue
		}
		taskDir := filepath.Join(s.root, t.Name())
		runs, err := os.ReadDir(taskDir)
		if err != nil {
			slog.Warn("Failed to list staging directory", logfields.Path(taskDir), logfields.Error(err))
			continue
		}
		for _, r := range runs {
			info, err := r.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			runDir := filepath.Join(taskDir, r.Name())
			if err := os.RemoveAll(runDir); err != nil {
				slog.Warn("Failed to remove orphaned staging directory", logfields.Path(runDir), logfields.Error(err))
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Removed orphaned staging directories", slog.Int("count", removed))
	}
	return removed, nil
}
