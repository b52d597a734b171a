package diffutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/cmdrunner"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupTrees(t *testing.T) (left, right string) {
	t.Helper()
	root := t.TempDir()
	left = filepath.Join(root, "left")
	right = filepath.Join(root, "right")
	require.NoError(t, os.MkdirAll(left, 0o755))
	require.NoError(t, os.MkdirAll(right, 0o755))
	return left, right
}

func TestDiffFiles(t *testing.T) {
	requireGit(t)
	left, right := setupTrees(t)
	write(t, left, "modified.txt", "old\n")
	write(t, right, "modified.txt", "new\n")
	write(t, left, "deleted.txt", "gone\n")
	write(t, right, "sub/added.txt", "fresh\n")
	write(t, left, "same.txt", "stable\n")
	write(t, right, "same.txt", "stable\n")

	files, err := DiffFiles(context.Background(), cmdrunner.New(), left, right)
	require.NoError(t, err)

	byName := map[string]Operation{}
	for _, f := range files {
		byName[f.Name] = f.Op
	}
	assert.Equal(t, map[string]Operation{
		"modified.txt":  Modified,
		"deleted.txt":   Deleted,
		"sub/added.txt": Added,
	}, byName)
}

func TestDiffFilesIdenticalTrees(t *testing.T) {
	requireGit(t)
	left, right := setupTrees(t)
	write(t, left, "f", "same\n")
	write(t, right, "f", "same\n")

	files, err := DiffFiles(context.Background(), cmdrunner.New(), left, right)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiffFilesRequiresSiblings(t *testing.T) {
	left := t.TempDir()
	right := filepath.Join(t.TempDir(), "nested", "right")
	require.NoError(t, os.MkdirAll(right, 0o755))

	_, err := DiffFiles(context.Background(), cmdrunner.New(), left, right)
	assert.Error(t, err)
}

func TestDiffPathsAndApplyPatchRoundTrip(t *testing.T) {
	requireGit(t)
	left, right := setupTrees(t)
	write(t, left, "f", "one\ntwo\nthree\n")
	write(t, right, "f", "one\nTWO\nthree\n")

	runner := cmdrunner.New()
	root := filepath.Dir(left)
	diff, err := DiffPaths(context.Background(), runner, root, "left/f", "right/f")
	require.NoError(t, err)
	require.NotEmpty(t, diff)

	// Reverse-applying the diff onto the right tree restores the left content.
	require.NoError(t, ApplyPatch(context.Background(), runner, right, diff, 2, true))
	got, err := os.ReadFile(filepath.Join(right, "f"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(got))
}

func TestDiffPathsIdenticalContent(t *testing.T) {
	requireGit(t)
	left, right := setupTrees(t)
	write(t, left, "f", "same\n")
	write(t, right, "f", "same\n")

	diff, err := DiffPaths(context.Background(), cmdrunner.New(), filepath.Dir(left), "left/f", "right/f")
	require.NoError(t, err)
	assert.Nil(t, diff)
}

func TestDiffPathsIgnoresCarriageReturns(t *testing.T) {
	requireGit(t)
	left, right := setupTrees(t)
	write(t, left, "f", "line\n")
	write(t, right, "f", "line\r\n")

	diff, err := DiffPaths(context.Background(), cmdrunner.New(), filepath.Dir(left), "left/f", "right/f")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestApplyPatchEmptyIsNoop(t *testing.T) {
	assert.NoError(t, ApplyPatch(context.Background(), cmdrunner.New(), t.TempDir(), nil, 2, false))
}

func TestApplyPatchRejectsNegativeStrip(t *testing.T) {
	err := ApplyPatch(context.Background(), cmdrunner.New(), t.TempDir(), []byte("garbage"), -1, false)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	previous := []byte("one\ntwo\nthree\n")
	next := []byte("one\nTWO\nthree\nfour\n")

	added, removed := Stats(previous, next)
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)
}

func TestStatsIdentical(t *testing.T) {
	added, removed := Stats([]byte("same\n"), []byte("same\n"))
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestCheckNotInsideGitRepo(t *testing.T) {
	clean := t.TempDir()
	require.NoError(t, CheckNotInsideGitRepo(clean))

	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	nested := filepath.Join(repo, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	err := CheckNotInsideGitRepo(nested)
	require.Error(t, err)
	var gitErr *InsideGitDirError
	require.ErrorAs(t, err, &gitErr)
	assert.Equal(t, repo, gitErr.GitDir)
}
