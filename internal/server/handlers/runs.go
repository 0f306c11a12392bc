package handlers

import (
	"context"
	"log/slog"
	"net/http"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/server/responses"
)

// HistoryReader reads recorded run events.
type HistoryReader interface {
	ByTask(ctx context.Context, taskID string) ([]history.Event, error)
}

// RunHandlers serves the run history of a task.
type RunHandlers struct {
	history      HistoryReader
	errorAdapter *derrors.HTTPErrorAdapter
}

// NewRunHandlers creates run history handlers.
func NewRunHandlers(h HistoryReader) *RunHandlers {
	return &RunHandlers{history: h, errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default())}
}

// HandleRuns lists every recorded run of the task named in the path.
func (h *RunHandlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task")
	events, err := h.history.ByTask(r.Context(), taskID)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if len(events) == 0 {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.NotFoundError("no runs recorded for task").WithContext("task", taskID).Build())
		return
	}
	resp := &responses.RunsResponse{Task: taskID, Runs: history.GroupRuns(events)}
	if err := respond(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write runs response").Build())
	}
}
