// Package merge reconciles an origin tree with destination-side edits using
// per-file three-way merges against a shared baseline tree.
package merge

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/log"
)

// Warning is a non-fatal per-file merge outcome. Conflicted files stay in the
// result tree with markers; files the merge tool could not process keep their
// destination content.
type Warning struct {
	Path    string
	Message string
}

// Tool runs a merge import: it mutates the origin tree in place until it
// reflects the reconciliation of origin, destination, and baseline.
type Tool struct {
	runner  Runner
	workers int
}

// NewTool builds a Tool around a file-level merge runner. workers caps the
// number of concurrent merges; zero or negative falls back to GOMAXPROCS.
func NewTool(runner Runner, workers int) *Tool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Tool{runner: runner, workers: workers}
}

type mergeCandidate struct {
	rel         string
	origin      string
	destination string
	baseline    string
}

// MergeImport reconciles originDir against destinationDir using baselineDir
// as the common ancestor, for every path matched by files. On return
// originDir holds the merged tree. Warnings come back sorted by path so runs
// over the same inputs are reproducible.
func (t *Tool) MergeImport(ctx context.Context, originDir, destinationDir, baselineDir, scratchDir string, files glob.Glob) ([]Warning, error) {
	candidates, err := collectCandidates(originDir, destinationDir, baselineDir, files)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		warnings []Warning
		merr     *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for _, c := range candidates {
		g.Go(func() error {
			warning, err := t.mergeOne(gctx, c, scratchDir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				merr = multierror.Append(merr, errors.Wrapf(err, "merging %s", c.rel))
				return nil
			}
			if warning != nil {
				warnings = append(warnings, *warning)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}

	if err := importDestinationOnly(originDir, destinationDir, baselineDir, files); err != nil {
		return nil, err
	}

	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	logger := log.From(ctx)
	for _, w := range warnings {
		logger.Warn(w.Message, zap.String("path", w.Path))
	}

	return warnings, nil
}

// mergeOne resolves a single path present in all three trees. Content
// comparisons short-circuit the easy cases so the external merge tool only
// runs when both sides actually diverged from the baseline.
func (t *Tool) mergeOne(ctx context.Context, c mergeCandidate, scratchDir string) (*Warning, error) {
	originContent, err := os.ReadFile(c.origin)
	if err != nil {
		return nil, err
	}
	destinationContent, err := os.ReadFile(c.destination)
	if err != nil {
		return nil, err
	}
	baselineContent, err := os.ReadFile(c.baseline)
	if err != nil {
		return nil, err
	}

	switch {
	case bytes.Equal(originContent, destinationContent):
		return nil, nil
	case bytes.Equal(destinationContent, baselineContent):
		// Destination never touched the file; origin wins as-is.
		return nil, nil
	case bytes.Equal(originContent, baselineContent):
		// Only the destination edited the file; take its version.
		return nil, overwrite(c.origin, destinationContent)
	}

	result, err := t.runner.Merge(ctx, c.rel, c.origin, c.destination, c.baseline, scratchDir)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case StatusClean:
		return nil, overwrite(c.origin, result.Content)
	case StatusConflict:
		if err := overwrite(c.origin, result.Content); err != nil {
			return nil, err
		}
		return &Warning{Path: c.rel, Message: "merge conflict, markers left in file"}, nil
	case StatusTrouble:
		if err := overwrite(c.origin, destinationContent); err != nil {
			return nil, err
		}
		return &Warning{Path: c.rel, Message: "file could not be merged, keeping destination version"}, nil
	default:
		return nil, errors.Errorf("unknown merge status %d for %s", result.Status, c.rel)
	}
}

// collectCandidates walks the origin tree for files that also exist in both
// the destination and baseline trees. A file missing from either side has
// nothing to three-way merge and keeps its origin content.
func collectCandidates(originDir, destinationDir, baselineDir string, files glob.Glob) ([]mergeCandidate, error) {
	var candidates []mergeCandidate
	err := filepath.WalkDir(originDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(originDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !files.Matches(rel) {
			return nil
		}
		destination := filepath.Join(destinationDir, rel)
		baseline := filepath.Join(baselineDir, rel)
		if !regularFileExists(destination) || !regularFileExists(baseline) {
			return nil
		}
		candidates = append(candidates, mergeCandidate{
			rel:         rel,
			origin:      path,
			destination: destination,
			baseline:    baseline,
		})
		return nil
	})
	return candidates, err
}

// importDestinationOnly copies files that exist only in the destination into
// the result tree. Files the origin deleted stay deleted: they are present in
// the baseline, so their absence from the origin tree is the resolution.
func importDestinationOnly(originDir, destinationDir, baselineDir string, files glob.Glob) error {
	return filepath.WalkDir(destinationDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(destinationDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !files.Matches(rel) {
			return nil
		}
		if regularFileExists(filepath.Join(originDir, rel)) || regularFileExists(filepath.Join(baselineDir, rel)) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		target := filepath.Join(originDir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, content, 0o644)
	})
}

func overwrite(path string, content []byte) error {
	return os.WriteFile(path, content, 0o644)
}

func regularFileExists(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}
