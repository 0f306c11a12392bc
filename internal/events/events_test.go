package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subject  string
	data     []byte
	pubErr   error
	flushErr error
	closed   bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.subject = subject
	f.data = data
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error { return f.flushErr }
func (f *fakeConn) Close()                                 { f.closed = true }

func TestPublishOutcomeEncodesEvent(t *testing.T) {
	fc := &fakeConn{}
	p := &NATSPublisher{conn: fc, subject: "appforge.outcomes"}

	err := p.PublishOutcome(t.Context(), OutcomeEvent{
		RunID:    "run-1",
		TaskID:   "task-1",
		Round:    2,
		Status:   "success",
		RepoURL:  "https://github.com/o/r",
		Notified: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "appforge.outcomes", fc.subject)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(fc.data, &decoded))
	assert.Equal(t, "task-1", decoded["task"])
	assert.InDelta(t, 2, decoded["round"], 0)
	assert.Equal(t, true, decoded["notified"])
	assert.NotContains(t, decoded, "failed_phase")
	assert.NotEmpty(t, decoded["timestamp"])

	p.Close()
	assert.True(t, fc.closed)
}

func TestPublishOutcomeErrors(t *testing.T) {
	boom := errors.New("boom")

	p := &NATSPublisher{conn: &fakeConn{pubErr: boom}, subject: "s"}
	err := p.PublishOutcome(t.Context(), OutcomeEvent{TaskID: "t"})
	require.ErrorIs(t, err, ErrPublishFailed)
	require.ErrorIs(t, err, boom)

	p = &NATSPublisher{conn: &fakeConn{flushErr: boom}, subject: "s"}
	err = p.PublishOutcome(t.Context(), OutcomeEvent{TaskID: "t"})
	require.ErrorIs(t, err, ErrPublishFailed)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	require.NoError(t, p.PublishOutcome(t.Context(), OutcomeEvent{}))
	p.Close()
}
