package workdir

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubCleanup(t *testing.T) {
	d, err := New("driftsync-test")
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(d.Root()), "driftsync-test-")

	sub, err := d.Sub("premerge")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Root(), "premerge"), sub)

	// Sub is idempotent.
	again, err := d.Sub("premerge")
	require.NoError(t, err)
	assert.Equal(t, sub, again)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))
	require.NoError(t, d.Cleanup())

	_, err = os.Stat(d.Root())
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupNilSafe(t *testing.T) {
	var d *Dir
	assert.NoError(t, d.Cleanup())
}

func TestCleanupKeepsScratchInLocalDev(t *testing.T) {
	t.Setenv("DRIFTSYNC_ENVIRONMENT", "local")

	d, err := New("driftsync-test")
	require.NoError(t, err)
	defer os.RemoveAll(d.Root())

	require.NoError(t, d.Cleanup())
	_, err = os.Stat(d.Root())
	assert.NoError(t, err)
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")

	require.NoError(t, os.MkdirAll(filepath.Join(src, "a/b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a/b/file.txt"), []byte("content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "exec.sh"), []byte("#!/bin/sh\n"), 0o755))

	require.NoError(t, CopyTree(src, dst))

	content, err := os.ReadFile(filepath.Join(dst, "a/b/file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(content))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dst, "exec.sh"))
		require.NoError(t, err)
		assert.NotZero(t, info.Mode().Perm()&0o111)
	}
}

func TestCopyTreePreservesSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevation on windows")
	}
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")

	require.NoError(t, os.WriteFile(filepath.Join(src, "target"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("target", filepath.Join(src, "link")))

	require.NoError(t, CopyTree(src, dst))

	link, err := os.Readlink(filepath.Join(dst, "link"))
	require.NoError(t, err)
	assert.Equal(t, "target", link)
}
