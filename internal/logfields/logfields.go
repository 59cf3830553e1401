package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTask       = "task"
	KeyStage      = "stage"
	KeyState      = "state"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyBytes      = "bytes"
	KeySink       = "sink"
	KeyInputs     = "inputs"
	KeyRevision   = "revision"
	KeyChecksum   = "sha256"
	KeyReason     = "reason"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Task(name string) slog.Attr      { return slog.String(KeyTask, name) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Bytes(n int) slog.Attr           { return slog.Int(KeyBytes, n) }
func Sink(p string) slog.Attr         { return slog.String(KeySink, p) }
func Inputs(n int) slog.Attr          { return slog.Int(KeyInputs, n) }
func Revision(r string) slog.Attr     { return slog.String(KeyRevision, r) }
func Checksum(sum string) slog.Attr   { return slog.String(KeyChecksum, sum) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
