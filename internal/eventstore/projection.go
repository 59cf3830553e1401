// Package eventstore records pipeline runs as an append-only event log and
// folds it back into per-run summaries.
package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunSummary is a read model summarizing one pipeline run.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	Task         string        `json:"task"`
	Status       string        `json:"status"`
	Revision     string        `json:"revision,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Stages       []string      `json:"stages,omitempty"`
	Bytes        int           `json:"bytes,omitempty"`
	SHA256       string        `json:"sha256,omitempty"`
	ExternalSink string        `json:"external_sink,omitempty"`
	SinkWritten  bool          `json:"sink_written"`
	ErrorStage   string        `json:"error_stage,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Summaries folds every stored event into run summaries, newest first.
// limit <= 0 returns all runs.
func Summaries(ctx context.Context, store Store, limit int) ([]*RunSummary, error) {
	events, err := store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return nil, err
	}

	runs := make(map[string]*RunSummary)
	var order []*RunSummary
	for _, e := range events {
		s, ok := runs[e.RunID()]
		if !ok {
			s = &RunSummary{RunID: e.RunID(), Status: StatusRunning, StartedAt: e.Timestamp()}
			runs[e.RunID()] = s
			order = append(order, s)
		}
		apply(s, e)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].StartedAt.After(order[j].StartedAt)
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	return order, nil
}

func apply(s *RunSummary, e Event) {
	switch e.Type() {
	case TypeRunStarted:
		var p RunStarted
		if json.Unmarshal(e.Payload(), &p) == nil {
			s.Task = p.Task
			s.Revision = p.Revision
		}
		s.StartedAt = e.Timestamp()

	case TypeStageCompleted:
		var p StageCompleted
		if json.Unmarshal(e.Payload(), &p) == nil {
			s.Stages = append(s.Stages, p.Stage)
		}

	case TypeExternalSinkResolved:
		var p ExternalSinkResolved
		if json.Unmarshal(e.Payload(), &p) == nil {
			s.ExternalSink = p.Sink
			s.SinkWritten = p.Written
		}

	case TypeRunCompleted:
		complete(s, e.Timestamp(), StatusSucceeded)
		var p RunCompleted
		if json.Unmarshal(e.Payload(), &p) == nil {
			s.Bytes = p.Bytes
			s.SHA256 = p.SHA256
		}

	case TypeRunFailed:
		complete(s, e.Timestamp(), StatusFailed)
		var p RunFailed
		if json.Unmarshal(e.Payload(), &p) == nil {
			s.ErrorStage = p.Stage
			s.ErrorMessage = p.Error
		}
	}
}

func complete(s *RunSummary, at time.Time, status string) {
	s.CompletedAt = &at
	s.Duration = at.Sub(s.StartedAt)
	s.Status = status
}
