// Package queue runs accepted build tasks on a bounded pool of background
// workers so intake can acknowledge requests immediately.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
	"git.home.luguber.info/inful/appforge/internal/task"
)

var (
	// ErrQueueFull is returned by Enqueue when every slot is taken.
	ErrQueueFull = derrors.RuntimeError("build queue is full").Build()

	// ErrQueueClosed is returned by Enqueue after Stop.
	ErrQueueClosed = derrors.RuntimeError("build queue is shutting down").Build()
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Handler processes one task. Its error only marks the job failed.
type Handler func(ctx context.Context, t *task.BuildTask) error

// Job is a queued build task.
type Job struct {
	ID          string        `json:"id"`
	TaskID      string        `json:"task"`
	Round       int           `json:"round"`
	Status      Status        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`

	task *task.BuildTask
}

// Queue manages the build jobs and their workers.
type Queue struct {
	jobs        chan *Job
	workers     int
	maxSize     int
	handler     Handler
	recorder    metrics.Recorder
	mu          sync.Mutex
	closed      bool
	active      map[string]*Job
	history     []Job
	historySize int
	pool        workerPool
	cancel      context.CancelFunc
}

// New creates a queue with the configured size and worker count.
func New(cfg config.QueueConfig, handler Handler, recorder metrics.Recorder) *Queue {
	size := cfg.Size
	if size <= 0 {
		size = 100
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Queue{
		jobs:        make(chan *Job, size),
		workers:     workers,
		maxSize:     size,
		handler:     handler,
		recorder:    recorder,
		active:      make(map[string]*Job),
		historySize: 50,
	}
}

// Start launches the workers. Jobs run under a context derived from ctx.
func (q *Queue) Start(ctx context.Context) {
	slog.Info("Starting build queue", slog.Int("workers", q.workers), slog.Int("max_size", q.maxSize))

	runCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	q.pool.spawn(q.workers, func(workerID string) { q.worker(runCtx, workerID) })
}

// Enqueue accepts a task and returns its job id.
func (q *Queue) Enqueue(t *task.BuildTask) (string, error) {
	if t == nil {
		return "", derrors.ValidationError("task cannot be nil").Build()
	}

	job := &Job{
		ID:        uuid.NewString(),
		TaskID:    t.TaskID,
		Round:     t.Round,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		task:      t,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		q.recorder.SetQueueDepth(len(q.jobs))
		slog.Info("Build job enqueued", logfields.JobID(job.ID), logfields.TaskID(job.TaskID), logfields.Round(job.Round))
		return job.ID, nil
	default:
		return "", ErrQueueFull.WithContext("size", q.maxSize)
	}
}

// Length returns the number of jobs waiting for a worker.
func (q *Queue) Length() int {
	return len(q.jobs)
}

// Active returns copies of the currently running jobs, oldest first.
func (q *Queue) Active() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := make([]Job, 0, len(q.active))
	for _, job := range q.active {
		active = append(active, *job)
	}
	slices.SortFunc(active, func(a, b Job) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return active
}

// History returns the most recent finished jobs, oldest first.
func (q *Queue) History() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	history := make([]Job, len(q.history))
	copy(history, q.history)
	return history
}

// Stop refuses new jobs and lets the workers drain what is already queued.
// When ctx ends first, running jobs are cancelled and ctx's error is returned.
func (q *Queue) Stop(ctx context.Context) error {
	slog.Info("Stopping build queue", slog.Int("pending", len(q.jobs)))

	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	cancel := q.cancel
	q.mu.Unlock()

	err := q.pool.drain(ctx)
	if cancel != nil {
		cancel()
	}
	if err != nil {
		slog.Warn("Build queue drain interrupted", logfields.Error(err))
		return err
	}
	slog.Info("Build queue stopped")
	return nil
}

func (q *Queue) worker(ctx context.Context, workerID string) {
	slog.Debug("Build worker started", logfields.Worker(workerID))
	for job := range q.jobs {
		q.recorder.SetQueueDepth(len(q.jobs))
		q.process(ctx, job, workerID)
	}
	slog.Debug("Build worker stopped", logfields.Worker(workerID))
}

func (q *Queue) process(ctx context.Context, job *Job, workerID string) {
	start := time.Now()

	q.mu.Lock()
	job.StartedAt = &start
	job.Status = StatusRunning
	q.active[job.ID] = job
	q.mu.Unlock()

	slog.Info("Build job started", logfields.JobID(job.ID), logfields.TaskID(job.TaskID), logfields.Worker(workerID))

	err := q.run(ctx, job)

	end := time.Now()

	q.mu.Lock()
	job.CompletedAt = &end
	job.Duration = end.Sub(start)
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
	}
	delete(q.active, job.ID)
	q.addToHistory(*job)
	q.mu.Unlock()

	if err != nil {
		slog.Error("Build job failed",
			logfields.JobID(job.ID),
			logfields.TaskID(job.TaskID),
			logfields.DurationMS(float64(job.Duration.Milliseconds())),
			logfields.Error(err))
		return
	}
	slog.Info("Build job completed",
		logfields.JobID(job.ID),
		logfields.TaskID(job.TaskID),
		logfields.DurationMS(float64(job.Duration.Milliseconds())))
}

// run invokes the handler, converting a panic into an error so one bad task
// cannot take a worker down.
func (q *Queue) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = derrors.InternalError("build handler panicked").WithContext("panic", fmt.Sprint(r)).Build()
		}
	}()
	return q.handler(ctx, job.task)
}

// addToHistory appends a finished job, keeping at most historySize entries.
// Callers hold q.mu.
func (q *Queue) addToHistory(job Job) {
	job.task = nil
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		q.history = append([]Job(nil), q.history[len(q.history)-q.historySize:]...)
	}
}
