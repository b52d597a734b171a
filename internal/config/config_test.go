package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driftsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fullConfig = `
workflows:
  foo:
    origin:
      url: /repos/upstream
      ref: main
    destination:
      url: /repos/downstream
    label: Upstream-RevId
    glob:
      includes:
        - "third_party/foo/**"
      excludes:
        - "third_party/foo/PATCHES/**"
    autopatch:
      directory_prefix: third_party/foo
      directory: PATCHES
      header: "# Generated, do not edit.\n"
      suffix: .patch
      strip_names_and_line_numbers: true
    page_size: 50
    workers: 4
    subprocess_timeout: 90s
    author:
      name: Sync Bot
      email: sync@example.com
`

func TestLoadFullWorkflow(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	w, err := cfg.Workflow("foo")
	require.NoError(t, err)

	assert.Equal(t, "/repos/upstream", w.Origin.URL)
	assert.Equal(t, "main", w.Origin.Ref)
	assert.Equal(t, "/repos/downstream", w.Destination.URL)
	assert.Equal(t, "Upstream-RevId", w.Label)
	assert.Equal(t, []string{"third_party/foo/**"}, w.Files.Includes)
	assert.Equal(t, []string{"third_party/foo/PATCHES/**"}, w.Files.Excludes)
	require.NotNil(t, w.Autopatch)
	assert.Equal(t, "third_party/foo", w.Autopatch.DirectoryPrefix)
	assert.Equal(t, "PATCHES", w.Autopatch.Directory)
	assert.True(t, w.Autopatch.Strip)
	assert.Equal(t, 50, w.PageSize)
	assert.Equal(t, 4, w.Workers)
	assert.Equal(t, 90*time.Second, w.Timeout())
	assert.Equal(t, "Sync Bot", w.Author.Name)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
workflows:
  minimal:
    origin:
      url: /repos/upstream
    destination:
      url: /repos/downstream
`))
	require.NoError(t, err)

	w, err := cfg.Workflow("minimal")
	require.NoError(t, err)

	assert.Equal(t, DefaultLabel, w.Label)
	assert.Equal(t, DefaultPageSize, w.PageSize)
	assert.Equal(t, DefaultSubprocessTimeout, w.Timeout())
	assert.True(t, w.Files.Matches("any/path/at/all"))
	assert.Equal(t, "driftsync", w.Author.Name)
	assert.Nil(t, w.Autopatch)
}

func TestLoadRejectsEmptyConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "workflows: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no workflows")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
workflows:
  foo:
    origin:
      url: /a
    destination:
      url: /b
    subprocess_timeout: soon
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestWorkflowNotFoundListsNames(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
workflows:
  alpha:
    origin:
      url: /a
    destination:
      url: /b
  beta:
    origin:
      url: /a
    destination:
      url: /b
`))
	require.NoError(t, err)

	_, err = cfg.Workflow("gamma")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `workflow "gamma" not found`)
	assert.Contains(t, err.Error(), "[alpha beta]")
}
