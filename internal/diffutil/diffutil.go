// Package diffutil drives the native git diff/apply tooling between sibling
// directory trees. git diff exits 0 when trees are identical and 1 when they
// differ; anything else, or any stderr output alongside status 1, is a hard
// failure.
package diffutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/driftsync/driftsync/internal/cmdrunner"
	"github.com/driftsync/driftsync/internal/env"
)

type Operation string

const (
	Added    Operation = "A"
	Deleted  Operation = "D"
	Modified Operation = "M"
)

// DiffFile is one changed path between two trees, relative to the tree roots.
type DiffFile struct {
	Name string
	Op   Operation
}

// DiffFiles lists the paths that differ between the sibling directories left
// and right. Both must share the same parent so git prints stable relative
// names.
func DiffFiles(ctx context.Context, runner *cmdrunner.Runner, left, right string) ([]DiffFile, error) {
	root, leftRel, rightRel, err := siblingRoot(left, right)
	if err != nil {
		return nil, err
	}

	res, err := runner.Run(ctx, root, nil,
		env.GitBin(), "diff", "--no-color", "--no-renames", "--name-status", leftRel, rightRel)
	if err != nil {
		return nil, err
	}
	if res.ExitCode == 0 {
		return nil, nil
	}
	if res.ExitCode != 1 || len(res.Stderr) > 0 {
		return nil, errors.Errorf("git diff --name-status failed with status %d: %s", res.ExitCode, res.Stderr)
	}

	var files []DiffFile
	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		status, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		// Paths come back prefixed with the compared directory name.
		if _, rel, ok := strings.Cut(path, "/"); ok {
			path = rel
		}
		files = append(files, DiffFile{Name: path, Op: Operation(status[:1])})
	}

	return files, nil
}

// DiffPaths returns the unified diff between two paths relative to root,
// ignoring carriage returns at end of line so CRLF churn does not produce
// patches. An empty diff means the contents match.
func DiffPaths(ctx context.Context, runner *cmdrunner.Runner, root, left, right string) ([]byte, error) {
	res, err := runner.Run(ctx, root, nil,
		env.GitBin(), "diff", "--no-color", "--ignore-cr-at-eol", left, right)
	if err != nil {
		return nil, err
	}
	switch {
	case res.ExitCode == 0:
		return nil, nil
	case res.ExitCode == 1 && len(res.Stderr) == 0:
		return res.Stdout, nil
	default:
		return nil, errors.Errorf("git diff failed with status %d: %s", res.ExitCode, res.Stderr)
	}
}

// ApplyPatch applies a unified diff onto the tree rooted at root. strip is
// git apply's -p value; reverse applies the patch backwards.
func ApplyPatch(ctx context.Context, runner *cmdrunner.Runner, root string, patch []byte, strip int, reverse bool) error {
	if len(patch) == 0 {
		return nil
	}
	if strip < 0 {
		return errors.New("strip must be >= 0")
	}

	args := []string{"apply", fmt.Sprintf("-p%d", strip)}
	if reverse {
		args = append(args, "-R")
	}
	args = append(args, "-")

	res, err := runner.Run(ctx, root, patch, env.GitBin(), args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errors.Errorf("git apply failed with status %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// Stats counts the lines added and removed between two contents, in process,
// for log output. The authoritative diff always comes from git.
func Stats(previous, next []byte) (added, removed int) {
	m := difflib.NewMatcher(
		difflib.SplitLines(string(previous)),
		difflib.SplitLines(string(next)))
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			removed += op.I2 - op.I1
			added += op.J2 - op.J1
		case 'd':
			removed += op.I2 - op.I1
		case 'i':
			added += op.J2 - op.J1
		}
	}
	return added, removed
}

// InsideGitDirError reports a scratch directory nested inside a version
// control working tree, where the invoked git subprocess would resolve the
// enclosing repository instead of doing a plain tree diff.
type InsideGitDirError struct {
	Path   string
	GitDir string
}

func (e *InsideGitDirError) Error() string {
	return fmt.Sprintf("directory %s is inside git repository %s; pick a scratch root outside any working tree", e.Path, e.GitDir)
}

// CheckNotInsideGitRepo walks upward from dir looking for a .git entry. It is
// a configuration error for a scratch directory to live inside a repository.
func CheckNotInsideGitRepo(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", dir)
	}

	for cur := abs; ; cur = filepath.Dir(cur) {
		if _, err := os.Lstat(filepath.Join(cur, ".git")); err == nil {
			return &InsideGitDirError{Path: abs, GitDir: cur}
		}
		if cur == filepath.Dir(cur) {
			return nil
		}
	}
}

func siblingRoot(left, right string) (root, leftRel, rightRel string, err error) {
	leftAbs, err := filepath.Abs(left)
	if err != nil {
		return "", "", "", err
	}
	rightAbs, err := filepath.Abs(right)
	if err != nil {
		return "", "", "", err
	}
	if filepath.Dir(leftAbs) != filepath.Dir(rightAbs) {
		return "", "", "", errors.Errorf("%s and %s must be sibling directories", left, right)
	}
	return filepath.Dir(leftAbs), filepath.Base(leftAbs), filepath.Base(rightAbs), nil
}
