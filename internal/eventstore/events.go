package eventstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type names as persisted in the store.
const (
	TypeRunStarted           = "RunStarted"
	TypeStageCompleted       = "StageCompleted"
	TypeExternalSinkResolved = "ExternalSinkResolved"
	TypeRunCompleted         = "RunCompleted"
	TypeRunFailed            = "RunFailed"
)

func newBase(runID, eventType string, payload any) (BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return BaseEvent{}, fmt.Errorf("marshal %s payload for run %s: %w", eventType, runID, err)
	}
	return BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}, nil
}

// RunStarted is emitted when a pipeline run begins.
type RunStarted struct {
	BaseEvent
	Task     string   `json:"task"`
	Inputs   []string `json:"inputs"`
	Revision string   `json:"revision,omitempty"`
}

func NewRunStarted(runID, task string, inputs []string, revision string) (*RunStarted, error) {
	e := &RunStarted{Task: task, Inputs: inputs, Revision: revision}
	base, err := newBase(runID, TypeRunStarted, e)
	if err != nil {
		return nil, err
	}
	e.BaseEvent = base
	return e, nil
}

// StageCompleted is emitted after the clean or build stage succeeds.
type StageCompleted struct {
	BaseEvent
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
}

func NewStageCompleted(runID, stage string, duration time.Duration) (*StageCompleted, error) {
	e := &StageCompleted{Stage: stage, DurationMS: duration.Milliseconds()}
	base, err := newBase(runID, TypeStageCompleted, e)
	if err != nil {
		return nil, err
	}
	e.BaseEvent = base
	return e, nil
}

// ExternalSinkResolved records whether the optional external copy was written.
type ExternalSinkResolved struct {
	BaseEvent
	Sink    string `json:"sink"`
	Written bool   `json:"written"`
	Reason  string `json:"reason,omitempty"`
}

func NewExternalSinkResolved(runID, sink string, written bool, reason string) (*ExternalSinkResolved, error) {
	e := &ExternalSinkResolved{Sink: sink, Written: written, Reason: reason}
	base, err := newBase(runID, TypeExternalSinkResolved, e)
	if err != nil {
		return nil, err
	}
	e.BaseEvent = base
	return e, nil
}

// RunCompleted is emitted when the requested task finished successfully.
type RunCompleted struct {
	BaseEvent
	Artifact   string `json:"artifact,omitempty"`
	Bytes      int    `json:"bytes"`
	SHA256     string `json:"sha256,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func NewRunCompleted(runID, artifact string, size int, sum string, duration time.Duration) (*RunCompleted, error) {
	e := &RunCompleted{Artifact: artifact, Bytes: size, SHA256: sum, DurationMS: duration.Milliseconds()}
	base, err := newBase(runID, TypeRunCompleted, e)
	if err != nil {
		return nil, err
	}
	e.BaseEvent = base
	return e, nil
}

// RunFailed is emitted when a stage aborts the run.
type RunFailed struct {
	BaseEvent
	Stage    string `json:"stage"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

func NewRunFailed(runID, stage, category string, cause error) (*RunFailed, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	e := &RunFailed{Stage: stage, Category: category, Error: msg}
	base, err := newBase(runID, TypeRunFailed, e)
	if err != nil {
		return nil, err
	}
	e.BaseEvent = base
	return e, nil
}
