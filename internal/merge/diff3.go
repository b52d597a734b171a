package merge

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/driftsync/driftsync/internal/cmdrunner"
	"github.com/driftsync/driftsync/internal/env"
	"github.com/driftsync/driftsync/internal/log"
)

// Status classifies the outcome of a single three-way file merge.
type Status int

const (
	// StatusClean means the merge succeeded without overlapping edits.
	StatusClean Status = iota
	// StatusConflict means overlapping edits were marked up in the output.
	StatusConflict
	// StatusTrouble means the tool could not merge at all, typically a
	// binary file. The caller keeps the destination version.
	StatusTrouble
)

// Result carries the merged content and how the merge went.
type Result struct {
	Content []byte
	Status  Status
}

// Runner merges one file against its baseline and destination counterparts.
// A single method is all the protocol needs; implementations are swappable
// per configuration.
type Runner interface {
	Merge(ctx context.Context, relPath, originFile, destinationFile, baselineFile, workdir string) (Result, error)
}

// CommandLineDiffer shells out to diff3 -m. Exit status 0 is a clean merge,
// 1 means conflict markers were emitted, 2 means diff3 could not process the
// input (binary or otherwise untreatable).
type CommandLineDiffer struct {
	bin          string
	runner       *cmdrunner.Runner
	debugPattern *regexp.Regexp
}

// NewCommandLineDiffer builds a differ around the configured diff3 binary.
// debugPattern, when non-nil, selects the paths whose full invocation and
// output get logged; everything else stays quiet to keep large trees sane.
func NewCommandLineDiffer(runner *cmdrunner.Runner, debugPattern *regexp.Regexp) *CommandLineDiffer {
	return &CommandLineDiffer{
		bin:          env.Diff3Bin(),
		runner:       runner,
		debugPattern: debugPattern,
	}
}

func (d *CommandLineDiffer) Merge(ctx context.Context, relPath, originFile, destinationFile, baselineFile, workdir string) (Result, error) {
	argv := []string{
		originFile, "--label", "origin/" + relPath,
		baselineFile, "--label", "baseline/" + relPath,
		destinationFile, "--label", "destination/" + relPath,
		"-m",
	}

	res, err := d.runner.Run(ctx, workdir, nil, d.bin, argv...)
	if err != nil {
		return Result{}, errors.Wrapf(err, "could not execute %s", d.bin)
	}

	if d.debugPattern != nil && d.debugPattern.MatchString(relPath) {
		log.From(ctx).Info("diff3 invocation",
			zap.String("path", relPath),
			zap.String("argv", d.bin+" "+strings.Join(argv, " ")),
			zap.Int("exit_code", res.ExitCode),
			zap.ByteString("stdout", res.Stdout),
			zap.ByteString("stderr", res.Stderr),
		)
	}

	switch res.ExitCode {
	case 0:
		return Result{Content: res.Stdout, Status: StatusClean}, nil
	case 1:
		return Result{Content: res.Stdout, Status: StatusConflict}, nil
	case 2:
		return Result{Content: res.Stdout, Status: StatusTrouble}, nil
	default:
		return Result{}, errors.Errorf("unexpected exit code %d from %s: %s", res.ExitCode, d.bin, res.Stderr)
	}
}
