package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObservePhaseDuration("publish", time.Second)
	r.IncPhaseResult("publish", ResultSuccess)
	r.ObserveRunDuration(time.Second)
	r.IncRunOutcome("success")
	r.IncNotification(true)
	r.SetQueueDepth(3)
	r.IncIntake(http.StatusAccepted)
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncPhaseResult("publish", ResultSuccess)
	r.IncPhaseResult("publish", ResultSuccess)
	r.IncPhaseResult("validate", ResultAbort)
	r.IncRunOutcome("success")
	r.IncNotification(false)
	r.SetQueueDepth(7)
	r.IncIntake(http.StatusForbidden)
	r.ObservePhaseDuration("publish", 250*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(r.phaseResults.WithLabelValues("publish", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.phaseResults.WithLabelValues("validate", "abort")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.notifications.WithLabelValues("failed")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(r.queueDepth), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.intake.WithLabelValues("403")), 0)

	var nilRecorder *PrometheusRecorder
	nilRecorder.IncRunOutcome("success")
}

func TestHTTPHandlerExposesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)
	r.IncRunOutcome("abort")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `appforge_run_outcomes_total{outcome="abort"} 1`)
}
