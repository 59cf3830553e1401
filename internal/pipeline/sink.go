package pipeline

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/metrics"
)

// Reasons reported when the external copy is skipped.
const (
	SinkReasonDisabled     = "disabled"
	SinkReasonMissing      = "not found"
	SinkReasonNotDirectory = "not a directory"
	SinkReasonInaccessible = "inaccessible"
)

// SinkOutcome describes what happened to the external copy.
type SinkOutcome struct {
	Dir     string
	Path    string
	Written bool
	Reason  string
}

// Label maps the outcome to its metrics label.
func (o SinkOutcome) Label() metrics.SinkResultLabel {
	switch {
	case o.Written:
		return metrics.SinkWritten
	case o.Reason == SinkReasonDisabled:
		return metrics.SinkDisabled
	default:
		return metrics.SinkSkipped
	}
}

// checkSink reports whether dir can receive the external copy. It never
// creates anything.
func checkSink(dir string) (bool, string) {
	if dir == "" {
		return false, SinkReasonDisabled
	}
	info, err := os.Stat(dir)
	switch {
	case stdErrors.Is(err, fs.ErrNotExist):
		return false, SinkReasonMissing
	case err != nil:
		return false, SinkReasonInaccessible
	case !info.IsDir():
		return false, SinkReasonNotDirectory
	}
	return true, ""
}

// deliverExternal writes data into dir under name when dir is an existing
// directory. Skipping is not an error; a failed write into an existing
// directory is a write error, as is a destination that resolves to one of the
// protected files (the artifact and the inputs), including through symlinks.
func deliverExternal(data []byte, dir, name string, protected []string) (SinkOutcome, error) {
	out := SinkOutcome{Dir: dir}
	ok, reason := checkSink(dir)
	if !ok {
		out.Reason = reason
		return out, nil
	}

	dest := filepath.Join(dir, name)
	if alias := aliasOf(dest, protected); alias != "" {
		return out, derrors.WriteFailed(dest, fmt.Errorf("external copy would overwrite %s", alias))
	}
	if err := writeArtifact(dest, data); err != nil {
		return out, err
	}
	out.Path = dest
	out.Written = true
	return out, nil
}

// aliasOf returns the protected path dest refers to, or "".
func aliasOf(dest string, protected []string) string {
	destInfo, err := os.Stat(dest)
	for _, p := range protected {
		if filepath.Clean(p) == filepath.Clean(dest) {
			return p
		}
		if err != nil {
			continue
		}
		if info, perr := os.Stat(p); perr == nil && os.SameFile(destInfo, info) {
			return p
		}
	}
	return ""
}
