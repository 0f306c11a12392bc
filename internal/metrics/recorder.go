package metrics

import "time"

// ResultLabel enumerates phase result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultSkip    ResultLabel = "skip"
	ResultAbort   ResultLabel = "abort"
)

// Recorder defines observability hooks for pipeline runs.
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	IncPhaseResult(phase string, result ResultLabel)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome string) // outcome: success|abort
	IncNotification(delivered bool)
	SetQueueDepth(n int)
	IncIntake(status int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) IncPhaseResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncRunOutcome(string)                       {}
func (NoopRecorder) IncNotification(bool)                       {}
func (NoopRecorder) SetQueueDepth(int)                          {}
func (NoopRecorder) IncIntake(int)                              {}
