// Package events fans out task outcomes to downstream consumers over NATS.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
)

var (
	// ErrConnectFailed indicates the NATS server could not be reached.
	ErrConnectFailed = derrors.NetworkError("failed to connect to NATS").Build()

	// ErrPublishFailed indicates an outcome could not be published.
	ErrPublishFailed = derrors.NetworkError("failed to publish outcome event").Build()
)

// OutcomeEvent is the message published once per finished run.
type OutcomeEvent struct {
	RunID       string    `json:"run_id"`
	TaskID      string    `json:"task"`
	Round       int       `json:"round"`
	Status      string    `json:"status"`
	FailedPhase string    `json:"failed_phase,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RepoURL     string    `json:"repo_url,omitempty"`
	CommitSHA   string    `json:"commit_sha,omitempty"`
	PagesURL    string    `json:"pages_url,omitempty"`
	Notified    bool      `json:"notified"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher publishes outcome events.
type Publisher interface {
	PublishOutcome(ctx context.Context, event OutcomeEvent) error
	Close()
}

// conn is the subset of *nats.Conn used by NATSPublisher.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes outcome events on a core NATS subject.
type NATSPublisher struct {
	conn    conn
	subject string
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the configured NATS server.
func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("appforge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, ErrConnectFailed.WithContext("url", cfg.NATSURL).WithCause(err)
	}
	slog.Info("NATS outcome publisher connected",
		logfields.Endpoint(cfg.NATSURL),
		slog.String("subject", cfg.Subject))
	return &NATSPublisher{conn: nc, subject: cfg.Subject}, nil
}

// PublishOutcome marshals event and publishes it, waiting for the server to
// acknowledge the flush or ctx to end.
func (p *NATSPublisher) PublishOutcome(ctx context.Context, event OutcomeEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return ErrPublishFailed.WithContext("task", event.TaskID).WithCause(err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ErrPublishFailed.WithContext("task", event.TaskID).WithCause(err)
	}
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.conn.FlushWithContext(flushCtx); err != nil {
		return ErrPublishFailed.WithContext("task", event.TaskID).WithCause(err)
	}
	slog.Debug("Published outcome event",
		logfields.TaskID(event.TaskID),
		logfields.Round(event.Round),
		logfields.Status(event.Status))
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutcome(context.Context, OutcomeEvent) error { return nil }
func (NoopPublisher) Close()                                             {}
