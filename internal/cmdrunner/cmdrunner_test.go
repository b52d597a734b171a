package cmdrunner

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	requireSh(t)
	res, err := New().Run(context.Background(), t.TempDir(), nil, "sh", "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(res.Stdout))
	assert.Empty(t, res.Stderr)
	assert.Zero(t, res.ExitCode)
}

func TestRunCapturesStderrAndExitCode(t *testing.T) {
	requireSh(t)
	res, err := New().Run(context.Background(), t.TempDir(), nil, "sh", "-c", "printf oops >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, "oops", string(res.Stderr))
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunFeedsStdin(t *testing.T) {
	requireSh(t)
	res, err := New().Run(context.Background(), t.TempDir(), []byte("from stdin"), "sh", "-c", "cat")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(res.Stdout))
}

func TestRunRunsInDir(t *testing.T) {
	requireSh(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	res, err := New().Run(context.Background(), dir, nil, "sh", "-c", "pwd")
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(string(res.Stdout)))
}

func TestRunTimeoutIsError(t *testing.T) {
	requireSh(t)
	_, err := New(WithTimeout(50 * time.Millisecond)).Run(
		context.Background(), t.TempDir(), nil, "sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunMissingBinaryIsError(t *testing.T) {
	_, err := New().Run(context.Background(), t.TempDir(), nil, "definitely-not-a-real-binary-name")
	assert.Error(t, err)
}
