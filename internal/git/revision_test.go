package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	helpers "git.home.luguber.info/inful/seqbuild/internal/testutil/testutils"
)

// helper to add a file and commit returning hash.
func addCommit(t *testing.T, wt *git.Worktree, repoPath, filename, content, msg string) plumbing.Hash {
	t.Helper()
	full := filepath.Join(repoPath, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	_, err := wt.Add(filename)
	require.NoError(t, err)
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()}})
	require.NoError(t, err)
	return hash
}

func TestReadRevision(t *testing.T) {
	_, wt, dir := helpers.SetupTestGitRepo(t)
	hash := addCommit(t, wt, dir, "Scripts/Common.py", "A\n", "initial")

	rev, err := ReadRevision(filepath.Join(dir, "Scripts"))
	require.NoError(t, err)

	assert.Equal(t, hash.String(), rev.Commit)
	assert.Equal(t, "master", rev.Branch)
	assert.False(t, rev.Dirty)
	assert.Equal(t, hash.String()[:12], rev.Short())
}

func TestReadRevision_Dirty(t *testing.T) {
	_, wt, dir := helpers.SetupTestGitRepo(t)
	addCommit(t, wt, dir, "a.txt", "A", "A")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed"), 0o600))

	rev, err := ReadRevision(dir)
	require.NoError(t, err)
	assert.True(t, rev.Dirty)
	assert.Contains(t, rev.Short(), "-dirty")
}

func TestReadRevision_NoCommits(t *testing.T) {
	_, _, dir := helpers.SetupTestGitRepo(t)

	rev, err := ReadRevision(dir)
	require.NoError(t, err)
	assert.Empty(t, rev.Commit)
}

func TestReadRevision_NotRepository(t *testing.T) {
	_, err := ReadRevision(t.TempDir())
	require.ErrorIs(t, err, ErrNotRepository)
}
