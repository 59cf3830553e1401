package pipeline

import "time"

// StageTiming is the wall time spent in one stage.
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// Result describes one pipeline run.
type Result struct {
	RunID    string
	Task     string
	State    State
	Inputs   []string
	Revision string

	// Artifact is empty when the build stage did not complete.
	Artifact string
	Bytes    int
	SHA256   string

	ExternalSink string
	SinkWritten  bool
	SinkReason   string

	Stages   []StageTiming
	Duration time.Duration
}

// StageDuration returns the duration recorded for name, or zero.
func (r *Result) StageDuration(name string) time.Duration {
	for _, s := range r.Stages {
		if s.Name == name {
			return s.Duration
		}
	}
	return 0
}
