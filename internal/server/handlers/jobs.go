package handlers

import (
	"log/slog"
	"net/http"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/queue"
	"git.home.luguber.info/inful/appforge/internal/server/responses"
)

// JobLister exposes the queue's running and finished jobs.
type JobLister interface {
	Active() []queue.Job
	History() []queue.Job
}

// JobHandlers serves the in-memory job list.
type JobHandlers struct {
	jobs         JobLister
	errorAdapter *derrors.HTTPErrorAdapter
}

// NewJobHandlers creates job list handlers.
func NewJobHandlers(jobs JobLister) *JobHandlers {
	return &JobHandlers{jobs: jobs, errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default())}
}

// HandleJobs lists running jobs and the recent history, oldest first.
func (h *JobHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	resp := &responses.JobsResponse{Active: h.jobs.Active(), Recent: h.jobs.History()}
	if err := respond(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write jobs response").Build())
	}
}
