package httpserver

import (
	"time"

	"git.home.luguber.info/inful/appforge/internal/queue"
	"git.home.luguber.info/inful/appforge/internal/task"
)

// QueueRuntime adapts the worker queue to Runtime.
type QueueRuntime struct {
	queue *queue.Queue
	start time.Time
}

var _ Runtime = (*QueueRuntime)(nil)

// NewQueueRuntime wraps q and records the start time for uptime reporting.
func NewQueueRuntime(q *queue.Queue) *QueueRuntime {
	return &QueueRuntime{queue: q, start: time.Now()}
}

func (a *QueueRuntime) Enqueue(t *task.BuildTask) (string, error) { return a.queue.Enqueue(t) }
func (a *QueueRuntime) QueueLength() int                          { return a.queue.Length() }
func (a *QueueRuntime) ActiveJobs() int                           { return len(a.queue.Active()) }
func (a *QueueRuntime) StartTime() time.Time                      { return a.start }
func (a *QueueRuntime) Active() []queue.Job                       { return a.queue.Active() }
func (a *QueueRuntime) History() []queue.Job                      { return a.queue.History() }
