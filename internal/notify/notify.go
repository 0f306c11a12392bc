// Package notify delivers build results to the caller's callback endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/retry"
)

// ErrRetriesExhausted is returned once every attempt has failed. The last
// attempt's error is its cause.
var ErrRetriesExhausted = derrors.NotificationError("notification retries exhausted").Build()

// Payload is the JSON document posted to the callback endpoint.
type Payload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`

	// Extra holds caller-supplied correlation fields echoed verbatim.
	// A key that collides with a field above is dropped.
	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON merges Extra into the fixed fields.
func (p Payload) MarshalJSON() ([]byte, error) {
	type plain Payload
	fixed, err := json.Marshal(plain(p))
	if err != nil || len(p.Extra) == 0 {
		return fixed, err
	}
	doc := make(map[string]json.RawMessage, len(p.Extra)+7)
	if err := json.Unmarshal(fixed, &doc); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, ok := doc[k]; !ok {
			doc[k] = v
		}
	}
	return json.Marshal(doc)
}

// Dispatcher posts payloads with bounded exponential backoff.
type Dispatcher struct {
	client *http.Client
	policy retry.Policy
	sleep  func(context.Context, time.Duration) error
}

// NewDispatcher creates a dispatcher from notification settings.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{Timeout: cfg.AttemptTimeout},
		policy: retry.FromNotify(cfg),
		sleep:  sleepContext,
	}
}

// SetSleeper replaces the delay function, e.g. to record delays in tests.
func (d *Dispatcher) SetSleeper(fn func(context.Context, time.Duration) error) { d.sleep = fn }

// Policy returns the retry policy in use.
func (d *Dispatcher) Policy() retry.Policy { return d.policy }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver posts payload to endpoint until a 2xx response or the attempt
// budget is spent. Each call starts with a fresh budget.
func (d *Dispatcher) Deliver(ctx context.Context, endpoint string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return derrors.NotificationError("failed to encode notification").WithCause(err).Build()
	}

	attempts := d.policy.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = d.post(ctx, endpoint, body)
		if lastErr == nil {
			slog.Info("Notification delivered",
				logfields.TaskID(payload.Task), logfields.Endpoint(endpoint), logfields.Attempt(attempt))
			return nil
		}
		if attempt == attempts {
			break
		}

		delay := d.policy.Delay(attempt)
		slog.Warn("Notification attempt failed, retrying",
			logfields.TaskID(payload.Task),
			logfields.Endpoint(endpoint),
			logfields.Attempt(attempt),
			slog.Duration("delay", delay),
			logfields.Error(lastErr))
		if err := d.sleep(ctx, delay); err != nil {
			return ErrRetriesExhausted.WithContext("attempts", attempt).WithCause(err)
		}
	}
	return ErrRetriesExhausted.WithContext("attempts", attempts).WithCause(lastErr)
}

func (d *Dispatcher) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return derrors.NotificationError("failed to create notification request").WithCause(err).Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return derrors.NetworkError("notification request failed").WithCause(err).Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return derrors.NotificationError(fmt.Sprintf("callback responded %s", resp.Status)).
			WithContext("code", resp.StatusCode).
			WithContext("response", strings.TrimSpace(string(limited))).
			Build()
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
