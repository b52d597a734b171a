package autopatch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/cmdrunner"
	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/workdir"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func testConfig() Config {
	return Config{
		DirectoryPrefix: "pkg",
		Directory:       "PATCHES",
		Header:          "# Generated patch file, do not edit by hand.\n",
		Suffix:          ".patch",
		Files:           glob.New([]string{"pkg/**"}, "pkg/PATCHES/**"),
	}
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPatchGlob(t *testing.T) {
	g := testConfig().PatchGlob()
	assert.True(t, g.Matches("pkg/PATCHES/f.txt.patch"))
	assert.False(t, g.Matches("pkg/f.txt"))
}

func TestGeneratePatchFilesRoundTrip(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	previous := filepath.Join(root, "previous")
	next := filepath.Join(root, "next")
	out := filepath.Join(root, "out")

	write(t, previous, "pkg/f.txt", "one\ntwo\nthree\n")
	write(t, next, "pkg/f.txt", "one\nTWO\nthree\nfour\n")
	write(t, previous, "pkg/same.txt", "unchanged\n")
	write(t, next, "pkg/same.txt", "unchanged\n")

	runner := cmdrunner.New()
	cfg := testConfig()
	require.NoError(t, GeneratePatchFiles(context.Background(), runner, previous, next, out, cfg))

	patch := filepath.Join(out, "pkg", "PATCHES", "f.txt.patch")
	content, err := os.ReadFile(patch)
	require.NoError(t, err)
	assert.Contains(t, string(content), cfg.Header)
	assert.Contains(t, string(content), "+TWO")

	// No patch for the unchanged file.
	_, err = os.Stat(filepath.Join(out, "pkg", "PATCHES", "same.txt.patch"))
	assert.True(t, os.IsNotExist(err))

	// Reverse-applying onto a copy of next reproduces previous.
	reversed := filepath.Join(root, "reversed")
	require.NoError(t, workdir.CopyTree(next, reversed))
	require.NoError(t, ReversePatchFiles(context.Background(), runner, reversed,
		filepath.Join(out, "pkg", "PATCHES"), cfg.Suffix))

	got, err := os.ReadFile(filepath.Join(reversed, "pkg", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(got))
}

func TestGeneratePatchFilesDeletesStalePatches(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	previous := filepath.Join(root, "previous")
	next := filepath.Join(root, "next")
	out := filepath.Join(root, "out")

	write(t, previous, "pkg/f.txt", "same\n")
	write(t, next, "pkg/f.txt", "same\n")
	// Leftover patch from an earlier run; its source no longer differs.
	write(t, out, "pkg/PATCHES/f.txt.patch", "obsolete")
	// Leftover patch whose source file vanished entirely.
	write(t, out, "pkg/PATCHES/gone.txt.patch", "obsolete")

	require.NoError(t, GeneratePatchFiles(context.Background(), cmdrunner.New(), previous, next, out, testConfig()))

	_, err := os.Stat(filepath.Join(out, "pkg/PATCHES/f.txt.patch"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(out, "pkg/PATCHES/gone.txt.patch"))
	assert.True(t, os.IsNotExist(err))
}

func TestGeneratePatchFilesWritesSeriesManifest(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	previous := filepath.Join(root, "previous")
	next := filepath.Join(root, "next")
	out := filepath.Join(root, "out")

	write(t, previous, "pkg/b.txt", "1\n")
	write(t, next, "pkg/b.txt", "2\n")
	write(t, previous, "pkg/a.txt", "1\n")
	write(t, next, "pkg/a.txt", "2\n")
	// Nested sources keep their subdirectory in the manifest, so two files
	// with the same base name stay distinguishable.
	write(t, previous, "pkg/sub/a.txt", "1\n")
	write(t, next, "pkg/sub/a.txt", "2\n")

	require.NoError(t, GeneratePatchFiles(context.Background(), cmdrunner.New(), previous, next, out, testConfig()))

	series, err := os.ReadFile(filepath.Join(out, "pkg", "PATCHES", SeriesFile))
	require.NoError(t, err)
	assert.Equal(t, "a.txt.patch\nb.txt.patch\nsub/a.txt.patch\n", string(series))

	_, err = os.Stat(filepath.Join(out, "pkg", "PATCHES", "sub", "a.txt.patch"))
	assert.NoError(t, err)
}

func TestReversePatchFilesSkipsSeriesManifest(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	target := filepath.Join(root, "target")
	patches := filepath.Join(root, "patches")

	write(t, target, "pkg/f.txt", "one\nTWO\nthree\n")
	write(t, patches, "f.txt.patch",
		"diff --git a/previous/pkg/f.txt b/next/pkg/f.txt\n"+
			"--- a/previous/pkg/f.txt\n"+
			"+++ b/next/pkg/f.txt\n"+
			"@@ -1,3 +1,3 @@\n one\n-two\n+TWO\n three\n")
	write(t, patches, SeriesFile, "f.txt.patch\n")

	// An empty suffix matches every file; the manifest must still be skipped.
	require.NoError(t, ReversePatchFiles(context.Background(), cmdrunner.New(), target, patches, ""))

	got, err := os.ReadFile(filepath.Join(target, "pkg", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(got))
}

func TestStripFileNamesAndLineNumbers(t *testing.T) {
	diff := "diff --git a/previous/pkg/f.txt b/next/pkg/f.txt\n" +
		"index 1234567..89abcde 100644\n" +
		"--- a/previous/pkg/f.txt\n" +
		"+++ b/next/pkg/f.txt\n" +
		"@@ -1,3 +1,4 @@\n" +
		" one\n" +
		"-two\n" +
		"+TWO\n" +
		" three\n" +
		"@@ -10 +11 @@\n" +
		" tail\n"

	stripped := StripFileNamesAndLineNumbers(diff)

	assert.NotContains(t, stripped, "f.txt")
	assert.NotContains(t, stripped, "-1,3")
	assert.Contains(t, stripped, "@@\n one\n-two\n+TWO\n three\n")
	assert.Contains(t, stripped, "@@\n tail\n")
	// Hunk bodies survive untouched.
	assert.Contains(t, stripped, "+TWO\n")
}

func TestStripFileNamesAndLineNumbersNoHunks(t *testing.T) {
	assert.Equal(t, "no hunks here", StripFileNamesAndLineNumbers("no hunks here"))
}
