// Package git reads source control metadata for the project being built.
package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNotRepository is returned when the project root is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Revision describes the checked out commit of a work tree.
type Revision struct {
	Commit string
	Branch string // empty for a detached HEAD
	Dirty  bool
}

// Short returns the abbreviated commit hash with a "-dirty" suffix when the
// work tree has uncommitted changes.
func (r Revision) Short() string {
	c := r.Commit
	if len(c) > 12 {
		c = c[:12]
	}
	if r.Dirty {
		c += "-dirty"
	}
	return c
}

// ReadRevision opens the repository containing dir (searching parent
// directories) and reports its HEAD.
func ReadRevision(dir string) (Revision, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Revision{}, ErrNotRepository
		}
		return Revision{}, fmt.Errorf("open repository: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Freshly initialized repository without commits.
			return Revision{}, nil
		}
		return Revision{}, fmt.Errorf("resolve HEAD: %w", err)
	}

	rev := Revision{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		rev.Branch = ref.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return rev, nil //nolint:nilerr // bare repositories have no dirty state
	}
	status, err := wt.Status()
	if err != nil {
		return rev, fmt.Errorf("worktree status: %w", err)
	}
	rev.Dirty = !status.IsClean()
	return rev, nil
}
