package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/logfields"
	"git.home.luguber.info/inful/seqbuild/internal/observability"
)

const artifactPerm = 0o644

// concatInputs reads every path in order and joins the contents with no
// separator. All inputs are read before anything is written.
func concatInputs(ctx context.Context, paths []string) ([]byte, error) {
	var buf bytes.Buffer
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, derrors.ReadFailed(path, err)
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// writeArtifact writes data to path through a temporary file in the same
// directory so a failed write never leaves a truncated artifact behind.
func writeArtifact(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return derrors.WriteFailed(dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return derrors.WriteFailed(path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return derrors.WriteFailed(path, err)
	}
	if err := tmp.Chmod(artifactPerm); err != nil {
		_ = tmp.Close()
		cleanup()
		return derrors.WriteFailed(path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return derrors.WriteFailed(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return derrors.WriteFailed(path, err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// build produces the artifact and, when available, its external copy.
func (p *Pipeline) build(ctx context.Context, res *Result) error {
	inputs := p.cfg.InputPaths()
	data, err := concatInputs(ctx, inputs)
	if err != nil {
		return err
	}

	artifact := p.cfg.ArtifactPath()
	if err := writeArtifact(artifact, data); err != nil {
		return err
	}
	res.Artifact = artifact
	res.Bytes = len(data)
	res.SHA256 = checksum(data)
	observability.InfoContext(ctx, "Artifact written",
		logfields.Path(artifact),
		logfields.Bytes(res.Bytes),
		logfields.Inputs(len(inputs)))

	protected := append([]string{artifact}, inputs...)
	outcome, err := deliverExternal(data, p.cfg.ExternalSinkDir(), p.cfg.Pipeline.Artifact, protected)
	res.ExternalSink = outcome.Dir
	res.SinkWritten = outcome.Written
	res.SinkReason = outcome.Reason
	p.recorder.IncExternalSink(outcome.Label())
	if err != nil {
		return err
	}
	if outcome.Written {
		observability.InfoContext(ctx, "External copy written", logfields.Sink(outcome.Path))
	} else {
		observability.DebugContext(ctx, "External sink unavailable",
			logfields.Sink(outcome.Dir), logfields.Reason(outcome.Reason))
	}
	return nil
}
