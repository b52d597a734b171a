package regenerate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/autopatch"
	"github.com/driftsync/driftsync/internal/cmdrunner"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/destination"
	"github.com/driftsync/driftsync/internal/git"
	"github.com/driftsync/driftsync/internal/glob"
)

var testAuthor = git.Author{Name: "driftsync", Email: "driftsync@localhost"}

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

func scratchDirs(t *testing.T) []string {
	t.Helper()
	dirs, err := filepath.Glob(filepath.Join(os.TempDir(), "driftsync-regenerate-*"))
	require.NoError(t, err)
	return dirs
}

func TestRunReversePatchRegeneratesPatches(t *testing.T) {
	requireGit(t)
	t.Setenv("DRIFTSYNC_CONCURRENCY_LOCK_DISABLED", "true")

	dir := t.TempDir()
	repo, err := git.Init(dir)
	require.NoError(t, err)

	// The last synced import: a patched tree plus the patch that produced it.
	write(t, dir, "pkg/f.txt", "one\nTWO\nthree\n")
	write(t, dir, "pkg/PATCHES/f.txt.patch",
		"diff --git a/previous/pkg/f.txt b/checkout/pkg/f.txt\n"+
			"--- a/previous/pkg/f.txt\n"+
			"+++ b/checkout/pkg/f.txt\n"+
			"@@ -1,3 +1,3 @@\n one\n-two\n+TWO\n three\n")
	_, err = repo.CommitAll("Import deadbeef from origin\n\n"+config.DefaultLabel+": deadbeef\n", testAuthor)
	require.NoError(t, err)

	// A manual edit lands on top of the import without updating the patch.
	write(t, dir, "pkg/f.txt", "one\nTWO\nthree\nfour\n")
	manual, err := repo.CommitAll("hand edit", testAuthor)
	require.NoError(t, err)

	dest, err := destination.NewGitDestination(dir, glob.New([]string{"pkg/**"}), testAuthor, config.DefaultLabel)
	require.NoError(t, err)

	before := scratchDirs(t)

	err = Run(context.Background(), Options{
		WorkflowName: "regen-e2e",
		Workflow: config.Workflow{
			Label:    config.DefaultLabel,
			Files:    glob.New([]string{"pkg/**"}),
			PageSize: 10,
			Autopatch: &autopatch.Config{
				DirectoryPrefix: "pkg",
				Directory:       "PATCHES",
				Suffix:          ".patch",
				Files:           glob.New([]string{"pkg/**"}, "pkg/PATCHES/**"),
			},
		},
		Destination: dest,
		Runner:      cmdrunner.New(),
	})
	require.NoError(t, err)

	// The run leaves no scratch trees behind.
	assert.Subset(t, before, scratchDirs(t))

	head, err := repo.HeadHash()
	require.NoError(t, err)
	require.NotEqual(t, manual, head)

	page, err := repo.LogPage(head, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Contains(t, page[0].Message, "Regenerate patch state for regen-e2e")
	assert.Equal(t, manual, page[1].Hash)

	// The fresh patch captures both the original edit and the manual one.
	patch, ok, err := repo.ShowFile(head, "pkg/PATCHES/f.txt.patch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(patch), "-two")
	assert.Contains(t, string(patch), "+TWO")
	assert.Contains(t, string(patch), "+four")

	series, ok, err := repo.ShowFile(head, "pkg/PATCHES/"+autopatch.SeriesFile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "f.txt.patch\n", string(series))

	content, ok, err := repo.ShowFile(head, "pkg/f.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one\nTWO\nthree\nfour\n", string(content))
}
