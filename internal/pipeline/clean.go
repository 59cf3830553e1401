package pipeline

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/logfields"
	"git.home.luguber.info/inful/seqbuild/internal/observability"
)

// clean removes the output directory recursively. A missing directory is
// success; a regular file at that path is not.
func (p *Pipeline) clean(ctx context.Context) error {
	dir := p.cfg.OutputDir()

	info, err := os.Stat(dir)
	switch {
	case stdErrors.Is(err, fs.ErrNotExist):
		observability.DebugContext(ctx, "Output directory absent", logfields.Path(dir))
		return nil
	case err != nil:
		return derrors.CleanFailed(dir, err)
	case !info.IsDir():
		return derrors.CleanFailed(dir, fmt.Errorf("output path is not a directory"))
	}

	if err := os.RemoveAll(dir); err != nil {
		return derrors.CleanFailed(dir, err)
	}
	observability.InfoContext(ctx, "Output directory removed", logfields.Path(dir))
	return nil
}
