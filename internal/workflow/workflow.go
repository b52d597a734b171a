// Package workflow runs an ordinary incremental sync: import the origin at a
// revision, three-way merge destination-only edits back in, regenerate the
// patch state, and publish the result tagged with the sync label.
package workflow

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

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
	"github.com/driftsync/driftsync/internal/merge"
	"github.com/driftsync/driftsync/internal/origin"
	"github.com/driftsync/driftsync/internal/workdir"
)

// Destination is what a migrate run needs from the destination backend.
type Destination interface {
	destination.Reader
	destination.Writer
	destination.PatchRegenerator
	history.Pager
}

type Options struct {
	WorkflowName string
	Workflow     config.Workflow
	Origin       origin.Origin
	Destination  Destination
	Runner       *cmdrunner.Runner

	// Ref overrides the configured origin ref to import.
	Ref string
	// DebugMergeFilter selects paths whose merge invocations get logged in
	// full.
	DebugMergeFilter string
}

// Run executes one migration. Merge conflicts are warnings; the run still
// publishes and returns nil. Only configuration and I/O problems fail it.
func Run(ctx context.Context, opts Options) error {
	logger := log.From(ctx)
	w := opts.Workflow

	if !env.IsConcurrencyLockDisabled() {
		lock := concurrency.New(
			filepath.Join(os.TempDir(), "driftsync-"+opts.WorkflowName+".lock"))
		if err := lock.Lock(); err != nil {
			return errors.Wrap(err, "acquiring workflow lock")
		}
		defer func() { _ = lock.Unlock() }()
	}

	wd, err := workdir.New("driftsync-migrate")
	if err != nil {
		return err
	}
	defer func() { _ = wd.Cleanup() }()

	if err := diffutil.CheckNotInsideGitRepo(wd.Root()); err != nil {
		return err
	}

	ref := opts.Ref
	if ref == "" {
		ref = w.Origin.Ref
	}
	rev, err := opts.Origin.Resolve(ctx, ref)
	if err != nil {
		return errors.Wrapf(err, "resolving origin ref %q", ref)
	}
	logger.Info("importing origin revision",
		zap.String("workflow", opts.WorkflowName), zap.String("revision", rev.ID))

	importGlob := w.Files
	if w.Autopatch != nil {
		importGlob = importGlob.Difference(w.Autopatch.PatchGlob())
	}
	if w.ConsistencyFilePath != "" {
		importGlob = importGlob.Difference(filePathGlob(w.ConsistencyFilePath))
	}

	next, err := wd.Sub("checkout")
	if err != nil {
		return err
	}
	if err := opts.Origin.Checkout(ctx, rev, next, importGlob); err != nil {
		return errors.Wrap(err, "checking out origin")
	}

	// The pre-merge copy is what destination-only edits are diffed against
	// when the patch state is regenerated below.
	previous, err := wd.Sub("premerge")
	if err != nil {
		return err
	}
	if err := workdir.CopyTree(next, previous); err != nil {
		return err
	}

	if err := mergeDestinationEdits(ctx, opts, wd, next, importGlob); err != nil {
		return err
	}

	if w.ConsistencyFilePath != "" {
		file, err := consistency.Generate(ctx, opts.Runner, previous, next)
		if err != nil {
			return err
		}
		out := filepath.Join(next, filepath.FromSlash(w.ConsistencyFilePath))
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(out, file.Bytes(), 0o644); err != nil {
			return err
		}
	} else if w.Autopatch != nil {
		if err := autopatch.GeneratePatchFiles(ctx, opts.Runner, previous, next, next, *w.Autopatch); err != nil {
			return err
		}
	}

	message := "Import " + rev.ID + " from origin"
	published, err := opts.Destination.Publish(ctx, next, message, w.Label, rev.ID)
	if err != nil {
		return errors.Wrap(err, "publishing imported tree")
	}
	logger.Success("published change", zap.String("revision", published))
	return nil
}

// mergeDestinationEdits reconciles the fresh origin checkout with edits made
// directly on the destination since the last sync. A first-time sync has no
// baseline and imports the origin as-is.
func mergeDestinationEdits(ctx context.Context, opts Options, wd *workdir.Dir, next string, importGlob glob.Glob) error {
	logger := log.From(ctx)
	w := opts.Workflow

	target, ok, err := opts.Destination.InferTarget(ctx)
	if err != nil {
		return errors.Wrap(err, "inferring destination target")
	}
	if !ok {
		logger.Info("destination has no history yet, importing origin as-is")
		return nil
	}

	destDir, err := wd.Sub("destination")
	if err != nil {
		return err
	}
	targetRev, err := opts.Destination.CopyDestinationFiles(ctx, target, importGlob, destDir)
	if err != nil {
		return errors.Wrap(err, "materializing destination tree")
	}

	traverser := history.NewTraverser(opts.Destination, w.Files)
	resolver := history.NewResolver(traverser, w.PageSize)
	baseline, found, err := resolver.Resolve(ctx, targetRev, w.Label)
	if err != nil {
		return errors.Wrap(err, "resolving baseline")
	}
	if !found {
		logger.Info("no baseline found, importing origin as-is",
			zap.String("label", w.Label))
		return nil
	}
	logger.Info("resolved baseline",
		zap.String("origin_revision", baseline.LabelValue),
		zap.String("destination_revision", baseline.Revision.ID))

	baselineRev, err := opts.Origin.Resolve(ctx, baseline.LabelValue)
	if err != nil {
		return errors.Wrapf(err, "resolving baseline origin revision %s", baseline.LabelValue)
	}
	baselineDir, err := wd.Sub("baseline")
	if err != nil {
		return err
	}
	if err := opts.Origin.Checkout(ctx, baselineRev, baselineDir, importGlob); err != nil {
		return errors.Wrap(err, "checking out baseline")
	}

	filter := opts.DebugMergeFilter
	if filter == "" {
		filter = w.DebugMergeFilter
	}
	var debugFilter *regexp.Regexp
	if filter != "" {
		debugFilter, err = regexp.Compile(filter)
		if err != nil {
			return errors.Wrapf(err, "invalid merge debug filter %q", filter)
		}
	}

	mergeDir, err := wd.Sub("merge")
	if err != nil {
		return err
	}
	tool := merge.NewTool(merge.NewCommandLineDiffer(opts.Runner, debugFilter), w.Workers)
	warnings, err := tool.MergeImport(ctx, next, destDir, baselineDir, mergeDir, importGlob)
	if err != nil {
		return errors.Wrap(err, "merge import")
	}
	if len(warnings) > 0 {
		logger.Warn("merge completed with conflicts", zap.Int("files", len(warnings)))
	}
	return nil
}

func filePathGlob(path string) glob.Glob {
	return glob.New([]string{path})
}
