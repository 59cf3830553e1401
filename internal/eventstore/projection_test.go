package eventstore

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendAll(t *testing.T, store Store, events ...Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, AppendEvent(t.Context(), store, e))
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestTypedEventPayloads(t *testing.T) {
	e := must(NewRunStarted("r1", "build", []string{"a.py", "b.py"}, "abc123"))
	assert.Equal(t, TypeRunStarted, e.Type())
	assert.Equal(t, "r1", e.RunID())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(e.Payload(), &decoded))
	assert.Equal(t, "build", decoded["task"])
	assert.Equal(t, "abc123", decoded["revision"])
	assert.NotContains(t, decoded, "EventRunID")
}

func TestSummaries(t *testing.T) {
	store := newTestStore(t)

	appendAll(t, store,
		must(NewRunStarted("ok", "build", []string{"a", "b"}, "abc")),
		must(NewStageCompleted("ok", "clean", time.Millisecond)),
		must(NewStageCompleted("ok", "build", 2*time.Millisecond)),
		must(NewExternalSinkResolved("ok", "/opt/scripts", true, "")),
		must(NewRunCompleted("ok", "Out/Sequencer.py", 4, "cafe", 3*time.Millisecond)),
	)
	time.Sleep(5 * time.Millisecond)
	appendAll(t, store,
		must(NewRunStarted("bad", "build", []string{"a", "b"}, "")),
		must(NewStageCompleted("bad", "clean", time.Millisecond)),
		must(NewRunFailed("bad", "build", "read", errors.New("missing input"))),
	)

	runs, err := Summaries(t.Context(), store, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	bad, ok := runs[0], runs[1]
	assert.Equal(t, "bad", bad.RunID)
	assert.Equal(t, StatusFailed, bad.Status)
	assert.Equal(t, "build", bad.ErrorStage)
	assert.Equal(t, "missing input", bad.ErrorMessage)
	assert.Equal(t, []string{"clean"}, bad.Stages)

	assert.Equal(t, "ok", ok.RunID)
	assert.Equal(t, StatusSucceeded, ok.Status)
	assert.Equal(t, "abc", ok.Revision)
	assert.Equal(t, 4, ok.Bytes)
	assert.Equal(t, "cafe", ok.SHA256)
	assert.True(t, ok.SinkWritten)
	assert.Equal(t, []string{"clean", "build"}, ok.Stages)
	require.NotNil(t, ok.CompletedAt)

	limited, err := Summaries(t.Context(), store, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "bad", limited[0].RunID)
}

func TestSummaries_RunningRun(t *testing.T) {
	store := newTestStore(t)
	appendAll(t, store, must(NewRunStarted("r", "clean", nil, "")))

	runs, err := Summaries(t.Context(), store, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].CompletedAt)
}
