// Package regenerate rebuilds the patch state of a destination after manual
// edits: it reconstructs a pristine pre-edit tree, diffs it against the
// current target tree, and publishes fresh autopatch files or a fresh
// consistency file.
package regenerate

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/driftsync/driftsync/internal/autopatch"
	"github.com/driftsync/driftsync/internal/cmdrunner"
	"github.com/driftsync/driftsync/internal/concurrency"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/consistency"
	"github.com/driftsync/driftsync/internal/destination"
	"github.com/driftsync/driftsync/internal/diffutil"
	"github.com/driftsync/driftsync/internal/env"
	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/history"
	"github.com/driftsync/driftsync/internal/log"
	"github.com/driftsync/driftsync/internal/origin"
	"github.com/driftsync/driftsync/internal/revision"
	"github.com/driftsync/driftsync/internal/workdir"
)

// Strategy names one of the mutually exclusive ways to reconstruct the
// pristine pre-edit tree.
type Strategy string

const (
	// StrategyReversePatch reverse-applies the existing autopatch files onto
	// the baseline tree.
	StrategyReversePatch Strategy = "reverse-patch"
	// StrategyImportBaseline re-runs the origin import at the last synced
	// revision, for patches without positional information.
	StrategyImportBaseline Strategy = "import-baseline"
	// StrategyConsistencyFile reverse-applies the single bundled diff after
	// verifying its recorded tree hashes.
	StrategyConsistencyFile Strategy = "consistency-file"
)

var ErrNoAutopatchConfig = errors.New("regenerating patch files requires the workflow to have an autopatch configuration")

// Destination is what the orchestrator needs from the destination backend.
type Destination interface {
	destination.Reader
	destination.PatchRegenerator
	history.Pager

	// ReadFile loads one path at a ref, for consistency-file retrieval.
	ReadFile(ctx context.Context, ref, path string) ([]byte, bool, error)
}

type Options struct {
	WorkflowName string
	Workflow     config.Workflow
	Origin       origin.Origin
	Destination  Destination
	Runner       *cmdrunner.Runner

	// SourceRef optionally overrides the origin ref for import-baseline runs.
	SourceRef string
	// Baseline and Target mirror --regen-baseline and --regen-target.
	Baseline       string
	Target         string
	ImportBaseline bool
}

// selectStrategy decides how the pristine tree is rebuilt. The three
// strategies are mutually exclusive; configuration picks exactly one.
func selectStrategy(w config.Workflow, importBaseline bool) (Strategy, error) {
	if w.ConsistencyFilePath != "" {
		return StrategyConsistencyFile, nil
	}
	if w.Autopatch == nil {
		return "", ErrNoAutopatchConfig
	}
	// Stripped patches have no line numbers to reverse-apply by, so the
	// import baseline is the only usable reconstruction.
	if importBaseline || w.Autopatch.Strip {
		return StrategyImportBaseline, nil
	}
	return StrategyReversePatch, nil
}

// Run executes one regenerate. Configuration problems abort with an error
// before anything is published; content-level conflicts only warn, and the
// run still publishes its best result.
func Run(ctx context.Context, opts Options) error {
	logger := log.From(ctx)

	if !env.IsConcurrencyLockDisabled() {
		lock := concurrency.New(
			filepath.Join(os.TempDir(), "driftsync-"+opts.WorkflowName+".lock"))
		if err := lock.Lock(); err != nil {
			return errors.Wrap(err, "acquiring workflow lock")
		}
		defer func() { _ = lock.Unlock() }()
	}

	wd, err := workdir.New("driftsync-regenerate")
	if err != nil {
		return err
	}
	defer func() { _ = wd.Cleanup() }()

	if err := diffutil.CheckNotInsideGitRepo(wd.Root()); err != nil {
		return err
	}

	previous, err := wd.Sub("premerge")
	if err != nil {
		return err
	}
	next, err := wd.Sub("checkout")
	if err != nil {
		return err
	}

	strategy, err := selectStrategy(opts.Workflow, opts.ImportBaseline)
	if err != nil {
		return err
	}
	logger.Info("regenerating patch state",
		zap.String("workflow", opts.WorkflowName), zap.String("strategy", string(strategy)))

	target, err := resolveTarget(ctx, opts)
	if err != nil {
		return err
	}

	switch strategy {
	case StrategyReversePatch:
		err = prepareReversePatch(ctx, opts, wd, previous, next, target)
	case StrategyImportBaseline:
		err = prepareImportBaseline(ctx, opts, previous, next, target)
	case StrategyConsistencyFile:
		err = prepareConsistency(ctx, opts, previous, next, target)
	}
	if err != nil {
		return err
	}

	if strategy == StrategyConsistencyFile {
		file, err := consistency.Generate(ctx, opts.Runner, previous, next)
		if err != nil {
			return err
		}
		out := filepath.Join(next, filepath.FromSlash(opts.Workflow.ConsistencyFilePath))
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(out, file.Bytes(), 0o644); err != nil {
			return err
		}
	} else {
		cfg := *opts.Workflow.Autopatch
		if err := autopatch.GeneratePatchFiles(ctx, opts.Runner, previous, next, next, cfg); err != nil {
			return err
		}
	}

	rev, err := opts.Destination.UpdateChange(ctx, opts.WorkflowName, next, opts.Workflow.Files, target)
	if err != nil {
		return errors.Wrap(err, "publishing regenerated patch state")
	}
	logger.Success("regenerated patch state published", zap.String("revision", rev))
	return nil
}

func resolveTarget(ctx context.Context, opts Options) (string, error) {
	if opts.Target != "" {
		return opts.Target, nil
	}
	target, ok, err := opts.Destination.InferTarget(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("regen target was neither supplied nor able to be inferred, supply with --regen-target")
	}
	return target, nil
}

func resolveBaseline(ctx context.Context, opts Options) (string, error) {
	if opts.Baseline != "" {
		return opts.Baseline, nil
	}
	baseline, ok, err := opts.Destination.InferBaseline(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("regen baseline was neither supplied nor able to be inferred, supply with --regen-baseline")
	}
	return baseline, nil
}

// prepareReversePatch checks out the baseline and target trees without their
// patch files, then reverse-applies the baseline's patches onto the baseline
// copy to recover the pristine import.
func prepareReversePatch(ctx context.Context, opts Options, wd *workdir.Dir, previous, next, target string) error {
	cfg := opts.Workflow.Autopatch
	patchGlob := cfg.PatchGlob()
	patchless := opts.Workflow.Files.Difference(patchGlob)

	baseline, err := resolveBaseline(ctx, opts)
	if err != nil {
		return err
	}

	if _, err := opts.Destination.CopyDestinationFiles(ctx, baseline, patchless, previous); err != nil {
		return errors.Wrap(err, "materializing baseline tree")
	}
	if _, err := opts.Destination.CopyDestinationFiles(ctx, target, patchless, next); err != nil {
		return errors.Wrap(err, "materializing target tree")
	}

	patches, err := wd.Sub("autopatches")
	if err != nil {
		return err
	}
	if _, err := opts.Destination.CopyDestinationFiles(ctx, baseline, patchGlob, patches); err != nil {
		return errors.Wrap(err, "materializing autopatch files")
	}

	return autopatch.ReversePatchFiles(ctx, opts.Runner, previous, patches, cfg.Suffix)
}

// prepareImportBaseline reconstructs the pristine tree by checking the origin
// out at the last synced revision, found through the sync label on
// destination history.
func prepareImportBaseline(ctx context.Context, opts Options, previous, next, target string) error {
	patchless := opts.Workflow.Files.Difference(opts.Workflow.Autopatch.PatchGlob())

	targetRev, err := opts.Destination.CopyDestinationFiles(ctx, target, patchless, next)
	if err != nil {
		return errors.Wrap(err, "materializing target tree")
	}

	originRev, err := lastSyncedOriginRevision(ctx, opts, targetRev)
	if err != nil {
		return err
	}

	resolved, err := opts.Origin.Resolve(ctx, originRev)
	if err != nil {
		return errors.Wrapf(err, "resolving origin revision %s from sync label", originRev)
	}
	if err := opts.Origin.Checkout(ctx, resolved, previous, patchless); err != nil {
		return errors.Wrap(err, "importing origin baseline")
	}
	return nil
}

// lastSyncedOriginRevision finds the origin revision id recorded by the most
// recent labeled destination change at or below the target.
func lastSyncedOriginRevision(ctx context.Context, opts Options, targetRev revision.Revision) (string, error) {
	if opts.SourceRef != "" {
		return opts.SourceRef, nil
	}

	traverser := history.NewTraverser(opts.Destination, opts.Workflow.Files)
	resolver := history.NewResolver(traverser, opts.Workflow.PageSize)

	baseline, ok, err := resolver.Resolve(ctx, targetRev, opts.Workflow.Label)
	if err != nil {
		return "", errors.Wrap(err, "resolving last synced revision")
	}
	if !ok {
		return "", errors.Errorf("no destination change below %s carries the %s label; cannot determine the import baseline", targetRev.ID, opts.Workflow.Label)
	}
	return baseline.LabelValue, nil
}

// prepareConsistency checks out both trees and reverse-applies the bundled
// diff stored at the baseline, provided its recorded hashes still match.
func prepareConsistency(ctx context.Context, opts Options, previous, next, target string) error {
	patchless := opts.Workflow.Files.Difference(glob.New([]string{opts.Workflow.ConsistencyFilePath}))

	baseline, err := resolveBaseline(ctx, opts)
	if err != nil {
		return err
	}

	if _, err := opts.Destination.CopyDestinationFiles(ctx, baseline, patchless, previous); err != nil {
		return errors.Wrap(err, "materializing baseline tree")
	}
	if _, err := opts.Destination.CopyDestinationFiles(ctx, target, patchless, next); err != nil {
		return errors.Wrap(err, "materializing target tree")
	}

	content, ok, err := opts.Destination.ReadFile(ctx, baseline, opts.Workflow.ConsistencyFilePath)
	if err != nil {
		return errors.Wrap(err, "loading consistency file")
	}
	if !ok {
		return errors.Errorf("consistency file %s not found at baseline %s", opts.Workflow.ConsistencyFilePath, baseline)
	}

	file, err := consistency.Parse(content)
	if err != nil {
		return errors.Wrap(err, "parsing consistency file")
	}

	// A stale bundle is non-fatal: ReverseOn warns and leaves the baseline
	// tree as the best available pristine approximation.
	if _, err := file.ReverseOn(ctx, opts.Runner, previous); err != nil {
		return err
	}
	return nil
}
