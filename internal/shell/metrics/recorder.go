// Package metrics records slug build metrics. NoopRecorder is the default;
// PrometheusRecorder is installed when metrics are enabled.
package metrics

import "time"

// OutcomeLabel enumerates build outcomes for counters.
type OutcomeLabel string

const (
	OutcomeCommitted  OutcomeLabel = "committed"
	OutcomeUnchanged  OutcomeLabel = "unchanged"
	OutcomeChecked    OutcomeLabel = "checked"
	OutcomeConflict   OutcomeLabel = "conflict"
	OutcomeFailed     OutcomeLabel = "failed"
	OutcomeSuppressed OutcomeLabel = "suppressed"
)

// Recorder defines observability hooks for trigger handling and builds.
type Recorder interface {
	IncTrigger(kind string)
	IncBuildOutcome(outcome OutcomeLabel)
	ObserveBuildDuration(d time.Duration)
	AddSlugWrites(op string, n int)
	IncConflicts(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncTrigger(string) {}
func (NoopRecorder) IncBuildOutcome(OutcomeLabel) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration) {}
func (NoopRecorder) AddSlugWrites(string, int) {}
func (NoopRecorder) IncConflicts(int) {}
