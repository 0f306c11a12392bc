package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
	"git.home.luguber.info/inful/appforge/internal/server/responses"
	"git.home.luguber.info/inful/appforge/internal/task"
)

// AcceptedStatus is the acknowledgment text returned for a queued request.
const AcceptedStatus = "Request received. Processing in background."

// Enqueuer hands accepted tasks to background workers.
type Enqueuer interface {
	Enqueue(t *task.BuildTask) (string, error)
}

// BuildHandlers serves the build intake endpoint.
type BuildHandlers struct {
	queue        Enqueuer
	secret       string
	maxBody      int64
	recorder     metrics.Recorder
	errorAdapter *derrors.HTTPErrorAdapter
}

// NewBuildHandlers creates the intake handlers.
func NewBuildHandlers(queue Enqueuer, cfg config.ServerConfig, recorder metrics.Recorder) *BuildHandlers {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &BuildHandlers{
		queue:        queue,
		secret:       cfg.SharedSecret,
		maxBody:      cfg.MaxBodyBytes,
		recorder:     recorder,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleBuild validates the request and its secret, then queues the task.
func (h *BuildHandlers) HandleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.fail(w, r, derrors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "POST").
			Build())
		return
	}

	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req task.Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, derrors.ValidationError("request body too large").
				WithContext("limit", tooLarge.Limit).
				Build())
			return
		}
		h.fail(w, r, derrors.ValidationError("Invalid JSON payload").WithCause(err).Build())
		return
	}

	if !h.secretMatches(req.Secret) {
		h.fail(w, r, derrors.AuthError("Invalid secret provided").Build())
		return
	}

	bt := req.BuildTask
	bt.Normalize()
	if err := bt.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	jobID, err := h.queue.Enqueue(&bt)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	slog.Info("Valid secret received; build queued",
		logfields.TaskID(bt.TaskID),
		logfields.Round(bt.Round),
		logfields.JobID(jobID))
	h.recorder.IncIntake(http.StatusAccepted)
	resp := &responses.BuildAcceptedResponse{Status: AcceptedStatus, JobID: jobID}
	if err := respond(w, r, http.StatusAccepted, resp); err != nil {
		slog.Error("failed to encode build response", logfields.Error(err))
	}
}

// secretMatches compares in constant time. An unconfigured secret rejects everything.
func (h *BuildHandlers) secretMatches(got string) bool {
	if h.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

func (h *BuildHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.recorder.IncIntake(h.errorAdapter.StatusCodeFor(err))
	h.errorAdapter.WriteErrorResponse(w, r, err)
}
