package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appforge/internal/config"
)

func newDispatcher(t *testing.T) (*Dispatcher, *[]time.Duration) {
	t.Helper()
	cfg := config.Default().Notify
	cfg.AttemptTimeout = time.Second
	d := NewDispatcher(cfg)
	var delays []time.Duration
	d.SetSleeper(func(_ context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		return nil
	})
	return d, &delays
}

func failingServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestDeliverSucceedsAfterFourFailures(t *testing.T) {
	srv, calls := failingServer(t, 4)
	d, delays := newDispatcher(t)

	err := d.Deliver(context.Background(), srv.URL, Payload{Task: "t1", Round: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, *delays)
}

func TestDeliverReportsFailureAfterFiveAttempts(t *testing.T) {
	srv, calls := failingServer(t, 100)
	d, delays := newDispatcher(t)

	err := d.Deliver(context.Background(), srv.URL, Payload{Task: "t1"})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(5), calls.Load())
	assert.Len(t, *delays, 4, "no delay after the final attempt")

	// A new call starts a fresh budget.
	err = d.Deliver(context.Background(), srv.URL, Payload{Task: "t1"})
	require.Error(t, err)
	assert.Equal(t, int32(10), calls.Load())
}

func TestDeliverFirstSuccessStops(t *testing.T) {
	var got Payload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	d, delays := newDispatcher(t)

	want := Payload{
		Email: "student@example.com", Task: "t1", Round: 2, Nonce: "ab12",
		RepoURL: "https://github.com/octo/llm-app-t1", CommitSHA: "abc", PagesURL: "https://octo.github.io/llm-app-t1/",
	}
	require.NoError(t, d.Deliver(context.Background(), srv.URL, want))
	assert.Equal(t, want, got)
	assert.Equal(t, "application/json", contentType)
	assert.Empty(t, *delays)
}

func TestDeliverTransportErrorsCountAsFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, delays := newDispatcher(t)
	err := d.Deliver(context.Background(), url, Payload{Task: "t1"})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Len(t, *delays, 4)
}

func TestDeliverStopsWhenContextCancelled(t *testing.T) {
	srv, calls := failingServer(t, 100)
	cfg := config.Default().Notify
	d := NewDispatcher(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	d.SetSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})
	err := d.Deliver(ctx, srv.URL, Payload{Task: "t1"})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPayloadWireFormat(t *testing.T) {
	data, err := json.Marshal(Payload{Email: "e", Task: "t", Round: 1, Nonce: "n", RepoURL: "r", CommitSHA: "c", PagesURL: "p"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"e","task":"t","round":1,"nonce":"n","repo_url":"r","commit_sha":"c","pages_url":"p"}`, string(data))
}

func TestDeliverEchoesCorrelationFields(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d, _ := newDispatcher(t)
	payload := Payload{
		Task:  "t1",
		Round: 1,
		Nonce: "n1",
		Extra: map[string]json.RawMessage{
			"team":  json.RawMessage(`"blue"`),
			"meta":  json.RawMessage(`{"seat":4}`),
			"nonce": json.RawMessage(`"spoofed"`),
		},
	}
	require.NoError(t, d.Deliver(context.Background(), srv.URL, payload))

	assert.JSONEq(t, `"blue"`, string(got["team"]))
	assert.JSONEq(t, `{"seat":4}`, string(got["meta"]))
	assert.JSONEq(t, `"n1"`, string(got["nonce"]))
	assert.JSONEq(t, `"t1"`, string(got["task"]))
}
