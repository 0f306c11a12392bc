// Package responses defines API response types used by the appforge HTTP handlers.
package responses

import (
	"time"

	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/queue"
)

// StatusResponse is the liveness document served at the root path.
type StatusResponse struct {
	Status string `json:"status"`
}

// BuildAcceptedResponse acknowledges a queued build request.
type BuildAcceptedResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	Uptime      float64   `json:"uptime"`
	QueueLength int       `json:"queue_length"`
	ActiveJobs  int       `json:"active_jobs"`
}

// RunsResponse lists the recorded runs of one task.
type RunsResponse struct {
	Task string        `json:"task"`
	Runs []history.Run `json:"runs"`
}

// JobsResponse lists running jobs and the most recently finished ones.
type JobsResponse struct {
	Active []queue.Job `json:"active"`
	Recent []queue.Job `json:"recent"`
}
