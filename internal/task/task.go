// Package task defines the records that flow through a build run.
package task

import (
	"encoding/json"
	"net/url"
	"strings"

	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
)

// Attachment is a request-supplied file carried as a data URI.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Correlation holds the opaque fields echoed back in the result notification.
// Extra carries any top-level request field the service does not interpret.
type Correlation struct {
	Email string                     `json:"email,omitempty"`
	Nonce string                     `json:"nonce,omitempty"`
	Extra map[string]json.RawMessage `json:"-"`
}

// knownFields are the request keys consumed by the service; everything else
// is correlation data. The secret is listed so it is never echoed.
var knownFields = map[string]bool{
	"task":           true,
	"round":          true,
	"brief":          true,
	"checks":         true,
	"attachments":    true,
	"repo_name":      true,
	"evaluation_url": true,
	"email":          true,
	"nonce":          true,
	"secret":         true,
}

// BuildTask is one invocation of the pipeline.
type BuildTask struct {
	TaskID      string       `json:"task"`
	Round       int          `json:"round"`
	Brief       string       `json:"brief"`
	Checks      []string     `json:"checks,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	RepoName    string       `json:"repo_name,omitempty"`
	CallbackURL string       `json:"evaluation_url"`
	Correlation
}

// Request is the intake envelope: a build task plus the caller's secret.
type Request struct {
	BuildTask
	Secret string `json:"secret"`
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (t *BuildTask) UnmarshalJSON(data []byte) error {
	type plain BuildTask
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if knownFields[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	*t = BuildTask(p)
	t.Extra = extra
	return nil
}

// UnmarshalJSON decodes the task and the secret.
func (r *Request) UnmarshalJSON(data []byte) error {
	if err := r.BuildTask.UnmarshalJSON(data); err != nil {
		return err
	}
	var s struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	r.Secret = s.Secret
	return nil
}

// Normalize applies intake defaults; a missing round means creation.
func (t *BuildTask) Normalize() {
	t.TaskID = strings.TrimSpace(t.TaskID)
	t.RepoName = strings.TrimSpace(t.RepoName)
	if t.Round == 0 {
		t.Round = 1
	}
}

// IsRevision reports whether the task revises an existing project.
func (t *BuildTask) IsRevision() bool { return t.Round > 1 }

// Validate checks the fields the pipeline relies on.
func (t *BuildTask) Validate() error {
	switch {
	case t.TaskID == "":
		return derrors.ValidationError("task identifier is required").WithContext("field", "task").Build()
	case t.Round < 1:
		return derrors.ValidationError("round must be a positive integer").
			WithContext("field", "round").WithContext("round", t.Round).Build()
	}
	u, err := url.Parse(t.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return derrors.ValidationError("evaluation_url must be an absolute http(s) URL").
			WithContext("field", "evaluation_url").WithCause(err).Build()
	}
	return nil
}
