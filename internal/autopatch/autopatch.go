// Package autopatch generates, deletes, and reverse-applies per-file patch
// files capturing destination-only edits layered on top of an imported tree.
package autopatch

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/driftsync/driftsync/internal/cmdrunner"
	"github.com/driftsync/driftsync/internal/diffutil"
	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/log"
)

// SeriesFile is the manifest listing patches in application order, for
// consumers that stack patches instead of applying them independently.
const SeriesFile = "series"

// Config describes where patch files live and how they are written. For a
// directory prefix third_party/foo, directory PATCHES, and changed file
// third_party/foo/bar/bar.txt, the patch lands at
// third_party/foo/PATCHES/bar/bar.txt<suffix>.
type Config struct {
	DirectoryPrefix string    `yaml:"directory_prefix"`
	Directory       string    `yaml:"directory"`
	Header          string    `yaml:"header"`
	Suffix          string    `yaml:"suffix"`
	Strip           bool      `yaml:"strip_names_and_line_numbers"`
	Files           glob.Glob `yaml:"glob"`
}

// PatchGlob covers every file under the autopatch directory.
func (c Config) PatchGlob() glob.Glob {
	dir := c.DirectoryPrefix
	if c.Directory != "" {
		dir = path.Join(dir, c.Directory)
	}
	return glob.New([]string{path.Join(dir, "**")})
}

// patchFilePath maps a changed file name to its patch file, relative to a
// tree root.
func (c Config) patchFilePath(name string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(name, c.DirectoryPrefix), "/")
	return path.Join(c.DirectoryPrefix, c.Directory, rel+c.Suffix)
}

// GeneratePatchFiles writes one patch file into outRoot for every file under
// cfg.Files that was modified between the sibling trees previous and next.
// Patch files whose source file no longer differs, or whose source vanished
// from the previous tree, are deleted from outRoot. Patches are diffed with
// CR-at-EOL ignored so line-ending churn never produces one.
func GeneratePatchFiles(ctx context.Context, runner *cmdrunner.Runner, previous, next, outRoot string, cfg Config) error {
	diffFiles, err := diffutil.DiffFiles(ctx, runner, previous, next)
	if err != nil {
		return errors.Wrap(err, "diffing trees for autopatch generation")
	}

	root := filepath.Dir(previous)
	previousName := filepath.Base(previous)
	nextName := filepath.Base(next)

	changed := map[string]bool{}
	logger := log.From(ctx)
	var written []string

	for _, df := range diffFiles {
		changed[df.Name] = true
		if df.Op != diffutil.Modified || !cfg.Files.Matches(df.Name) {
			continue
		}

		diff, err := diffutil.DiffPaths(ctx, runner, root,
			path.Join(previousName, df.Name), path.Join(nextName, df.Name))
		if err != nil {
			return errors.Wrapf(err, "diffing %s", df.Name)
		}
		if len(diff) == 0 {
			// Only carriage returns at end of line changed.
			continue
		}

		content := string(diff)
		if cfg.Strip {
			content = StripFileNamesAndLineNumbers(content)
		}

		target := filepath.Join(outRoot, filepath.FromSlash(cfg.patchFilePath(df.Name)))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(cfg.Header+content), 0o644); err != nil {
			return err
		}

		prevContent, _ := os.ReadFile(filepath.Join(previous, filepath.FromSlash(df.Name)))
		nextContent, _ := os.ReadFile(filepath.Join(next, filepath.FromSlash(df.Name)))
		added, removed := diffutil.Stats(prevContent, nextContent)
		logger.Info("wrote patch file",
			zap.String("path", df.Name), zap.Int("added", added), zap.Int("removed", removed))
		written = append(written, cfg.patchFilePath(df.Name))
	}

	if err := deleteStalePatches(previous, outRoot, cfg, changed); err != nil {
		return err
	}

	return writeSeries(outRoot, cfg, written)
}

// deleteStalePatches removes patch files in outRoot whose source file no
// longer differs between the trees, or was deleted from the previous tree
// altogether.
func deleteStalePatches(previous, outRoot string, cfg Config, changed map[string]bool) error {
	patchDir := cfg.DirectoryPrefix
	if cfg.Directory != "" {
		patchDir = path.Join(patchDir, cfg.Directory)
	}
	patchRoot := filepath.Join(outRoot, filepath.FromSlash(patchDir))

	return filepath.WalkDir(patchRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || d.Name() == SeriesFile || !strings.HasSuffix(p, cfg.Suffix) {
			return nil
		}
		rel, err := filepath.Rel(patchRoot, p)
		if err != nil {
			return err
		}
		source := path.Join(cfg.DirectoryPrefix, strings.TrimSuffix(filepath.ToSlash(rel), cfg.Suffix))
		if changed[source] && fileExists(filepath.Join(previous, filepath.FromSlash(source))) {
			return nil
		}
		return os.Remove(p)
	})
}

func fileExists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// writeSeries records the written patches, sorted, in a series manifest next
// to them. Entries are relative to the patch directory so nested patches stay
// addressable. No patches means no manifest; an existing one is removed.
func writeSeries(outRoot string, cfg Config, written []string) error {
	dir := cfg.DirectoryPrefix
	if cfg.Directory != "" {
		dir = path.Join(dir, cfg.Directory)
	}
	manifest := filepath.Join(outRoot, filepath.FromSlash(path.Join(dir, SeriesFile)))

	if len(written) == 0 {
		if _, err := os.Lstat(manifest); err == nil {
			return os.Remove(manifest)
		}
		return nil
	}

	sort.Strings(written)
	var b strings.Builder
	for _, p := range written {
		b.WriteString(strings.TrimPrefix(strings.TrimPrefix(p, dir), "/"))
		b.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(manifest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(manifest, []byte(b.String()), 0o644)
}

// ReversePatchFiles reverse-applies every patch file under patchDir carrying
// suffix onto the tree rooted at targetTree, reconstructing the pre-patch
// state. Patches are applied in path order; they touch disjoint files so
// ordering only matters for reproducible error output.
func ReversePatchFiles(ctx context.Context, runner *cmdrunner.Runner, targetTree, patchDir, suffix string) error {
	var patches []string
	err := filepath.WalkDir(patchDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// The series manifest is not a patch, even with an empty suffix.
		if !d.IsDir() && d.Name() != SeriesFile && strings.HasSuffix(p, suffix) {
			patches = append(patches, p)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "listing patch files")
	}
	sort.Strings(patches)

	for _, p := range patches {
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		// Headers look like a/previous/<path> so two components are stripped.
		if err := diffutil.ApplyPatch(ctx, runner, targetTree, content, 2, true); err != nil {
			return errors.Wrapf(err, "reverse-applying %s", filepath.Base(p))
		}
	}
	return nil
}

var hunkHeaderRe = regexp.MustCompile(`@@ -(\d+)(,\d+)? \+(\d+)(,\d+)? @@`)

// StripFileNamesAndLineNumbers drops everything before the first hunk and
// blanks the line numbers from every hunk header, so the patch body survives
// unrelated line shifts at the cost of positional precision.
func StripFileNamesAndLineNumbers(diff string) string {
	if i := strings.Index(diff, "\n@@"); i >= 0 {
		diff = diff[i+1:]
	}
	return hunkHeaderRe.ReplaceAllString(diff, "@@")
}
