// Package cmdrunner executes the external diff/patch tooling with bounded
// timeouts and precise exit-code capture. A non-zero exit status is not an
// error at this layer: git diff and diff3 both use non-zero codes to carry
// meaning, so callers dispatch on Result.ExitCode.
package cmdrunner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// DefaultTimeout bounds a single subprocess invocation. History fetches and
// per-file merges each run under their own deadline.
const DefaultTimeout = 2 * time.Minute

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

type Runner struct {
	timeout time.Duration
	env     []string
}

type Option func(*Runner)

func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithEnv replaces the subprocess environment. Nil inherits the parent's.
func WithEnv(env []string) Option {
	return func(r *Runner) { r.env = env }
}

func New(opts ...Option) *Runner {
	r := &Runner{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes name with args in dir, feeding stdin if non-nil. It returns an
// error only when the process could not be run to completion: start failures
// and timeouts. A timeout is a failure for that unit of work, never a skip.
func (r *Runner) Run(ctx context.Context, dir string, stdin []byte, name string, args ...string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if r.env != nil {
		cmd.Env = r.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var outb, errb bytes.Buffer
	cmd.Stdout = &outb
	cmd.Stderr = &errb

	err := cmd.Run()
	res := &Result{Stdout: outb.Bytes(), Stderr: errb.Bytes()}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, pkgerrors.Wrapf(ctxErr, "%s timed out after %s", name, r.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, pkgerrors.Wrapf(err, "could not execute %s", name)
	}

	return res, nil
}
