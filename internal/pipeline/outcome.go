package pipeline

import (
	"time"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/notify"
)

// Phase names a pipeline step.
type Phase string

const (
	PhaseState    Phase = "state"
	PhaseSnapshot Phase = "snapshot"
	PhaseStage    Phase = "stage"
	PhaseGenerate Phase = "generate"
	PhaseValidate Phase = "validate"
	PhasePublish  Phase = "publish"
	PhasePersist  Phase = "persist"
	PhaseNotify   Phase = "notify"
	PhaseCleanup  Phase = "cleanup"
	PhaseInternal Phase = "internal"
)

// Status is the result of a phase or of a whole run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkip    Status = "skip"
	StatusAbort   Status = "abort"
)

// PhaseResult is what one phase reports back to the orchestrator.
type PhaseResult struct {
	Phase    Phase         `json:"phase"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

func success(reason string) PhaseResult { return PhaseResult{Status: StatusSuccess, Reason: reason} }
func skip(reason string) PhaseResult    { return PhaseResult{Status: StatusSkip, Reason: reason} }

func abort(reason string, err error) PhaseResult {
	return PhaseResult{Status: StatusAbort, Reason: reason, Err: err}
}

// message is the text recorded in run history.
func (r PhaseResult) message() string {
	switch {
	case r.Err != nil && r.Reason != "":
		return r.Reason + ": " + r.Err.Error()
	case r.Err != nil:
		return r.Err.Error()
	default:
		return r.Reason
	}
}

// Outcome summarizes one run.
type Outcome struct {
	RunID        string          `json:"run_id"`
	TaskID       string          `json:"task"`
	Round        int             `json:"round"`
	Status       Status          `json:"status"`
	FailedPhase  Phase           `json:"failed_phase,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Phases       []PhaseResult   `json:"phases"`
	RepoName     string          `json:"repo_name,omitempty"`
	RepoURL      string          `json:"repo_url,omitempty"`
	SiteURL      string          `json:"site_url,omitempty"`
	CommitID     string          `json:"commit_id,omitempty"`
	Notification *notify.Payload `json:"notification,omitempty"`
	Notified     bool            `json:"notified"`
	Duration     time.Duration   `json:"duration"`
}

// Result returns the recorded result of phase p.
func (o Outcome) Result(p Phase) (PhaseResult, bool) {
	for _, r := range o.Phases {
		if r.Phase == p {
			return r, true
		}
	}
	return PhaseResult{}, false
}

// Err returns the error that aborted the run, or nil.
func (o Outcome) Err() error {
	if o.Status != StatusAbort {
		return nil
	}
	if r, ok := o.Result(o.FailedPhase); ok && r.Err != nil {
		return r.Err
	}
	return derrors.NewError(derrors.CategoryRuntime, "run aborted").
		WithContext("phase", string(o.FailedPhase)).
		WithContext("reason", o.Reason).
		Build()
}
