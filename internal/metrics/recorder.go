// Package metrics exposes job and pipeline observability hooks.
package metrics

import "time"

// Outcome labels a finished job.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeNoFace    Outcome = "no_face"
)

// Recorder receives job lifecycle and pipeline stage observations.
// Implementations must be safe for concurrent use.
type Recorder interface {
	IncJobsSubmitted()
	IncJobOutcome(outcome Outcome)
	ObserveStageDuration(stage string, d time.Duration)
	ObserveJobDuration(d time.Duration)
	SetInFlight(n int)
}

// NoopRecorder discards everything. It is the default when metrics are off.
type NoopRecorder struct{}

func (NoopRecorder) IncJobsSubmitted()                          {}
func (NoopRecorder) IncJobOutcome(Outcome)                      {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveJobDuration(time.Duration)           {}
func (NoopRecorder) SetInFlight(int)                            {}
