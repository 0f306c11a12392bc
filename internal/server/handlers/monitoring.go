package handlers

import (
	"log/slog"
	"net/http"
	"time"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/server/responses"
	"git.home.luguber.info/inful/appforge/internal/version"
)

// RootStatus is the liveness text served at the root path.
const RootStatus = "API is running"

// RuntimeInterface is the queue state reported by the health endpoint.
type RuntimeInterface interface {
	QueueLength() int
	ActiveJobs() int
	StartTime() time.Time
}

// MonitoringHandlers contains liveness and health handlers.
type MonitoringHandlers struct {
	runtime      RuntimeInterface
	errorAdapter *derrors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates a new monitoring handlers instance.
func NewMonitoringHandlers(runtime RuntimeInterface) *MonitoringHandlers {
	return &MonitoringHandlers{
		runtime:      runtime,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleRoot answers the liveness check.
func (h *MonitoringHandlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if err := respond(w, r, http.StatusOK, &responses.StatusResponse{Status: RootStatus}); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write status response").Build())
	}
}

// HandleHealthCheck handles the health check endpoint.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
	}
	if h.runtime != nil {
		health.Uptime = time.Since(h.runtime.StartTime()).Seconds()
		health.QueueLength = h.runtime.QueueLength()
		health.ActiveJobs = h.runtime.ActiveJobs()
	}

	if err := respond(w, r, http.StatusOK, health); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			derrors.WrapError(err, derrors.CategoryInternal, "failed to write health response").Build())
	}
}
