// Package consistency implements the single-file alternative to per-file
// autopatches: one serialized bundle holding the full baseline-to-destination
// diff plus a content hash of every destination file it was computed against.
package consistency

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/driftsync/driftsync/internal/cmdrunner"
	"github.com/driftsync/driftsync/internal/diffutil"
	"github.com/driftsync/driftsync/internal/log"
)

const header = "# This file is automatically generated by driftsync. Do not edit.\n"

const (
	hashesSection = "# hashes"
	patchSection  = "# patch"
)

// File is a parsed or freshly generated consistency file. DiffContent is a
// unified diff between sibling trees named baseline and destination, so its
// headers read a/baseline/<path> and b/destination/<path>. FileHashes maps
// destination paths to the sha256 of their content at generation time.
type File struct {
	DiffContent []byte
	FileHashes  map[string]string
}

// Generate diffs the sibling trees baseline and destination and hashes every
// regular file in destination. Symlinks are skipped, they have no stable
// content to hash.
func Generate(ctx context.Context, runner *cmdrunner.Runner, baseline, destination string) (*File, error) {
	diff, err := diffutil.DiffPaths(ctx, runner, filepath.Dir(baseline),
		filepath.Base(baseline), filepath.Base(destination))
	if err != nil {
		return nil, errors.Wrap(err, "diffing baseline against destination")
	}

	hashes := map[string]string{}
	err = filepath.WalkDir(destination, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(destination, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		hashes[filepath.ToSlash(rel)] = hex.EncodeToString(h.Sum(nil))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "hashing destination files")
	}

	return &File{DiffContent: diff, FileHashes: hashes}, nil
}

// Bytes serializes the file. Hash entries are sorted by path so generation is
// deterministic; the diff content goes last, verbatim.
func (f *File) Bytes() []byte {
	var b bytes.Buffer
	b.WriteString(header)
	b.WriteString(hashesSection + "\n")

	paths := make([]string, 0, len(f.FileHashes))
	for p := range f.FileHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(&b, "%s\t%s\n", p, f.FileHashes[p])
	}

	b.WriteString(patchSection + "\n")
	b.Write(f.DiffContent)
	return b.Bytes()
}

// Parse reads the serialized form back. Paths containing NUL bytes and hashes
// that are not hex strings fail parsing; a truncated or recognizably mangled
// file must never round-trip silently.
func Parse(content []byte) (*File, error) {
	f := &File{FileHashes: map[string]string{}}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	inHashes := false
	var consumed int
	for scanner.Scan() {
		line := scanner.Text()
		consumed += len(line) + 1
		switch {
		case line == hashesSection:
			inHashes = true
		case line == patchSection:
			if consumed <= len(content) {
				f.DiffContent = append([]byte{}, content[consumed:]...)
			}
			return f, nil
		case inHashes:
			path, hash, ok := strings.Cut(line, "\t")
			if !ok {
				return nil, errors.Errorf("malformed hash entry: %q", line)
			}
			if strings.ContainsRune(path, 0) {
				return nil, errors.Errorf("path value is invalid: %s", path)
			}
			if _, err := hex.DecodeString(hash); err != nil || hash == "" {
				return nil, errors.Errorf("hash value is invalid: %s", hash)
			}
			f.FileHashes[path] = hash
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("missing patch section")
}

// Validate checks the stored hashes against the tree rooted at dir. Every
// recorded path must exist with matching content; extra files in the tree are
// not an error, the hashes only vouch for what was recorded.
func (f *File) Validate(dir string) error {
	for p, want := range f.FileHashes {
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			return errors.Wrapf(err, "hashed file %s missing from tree", p)
		}
		sum := sha256.Sum256(content)
		if got := hex.EncodeToString(sum[:]); got != want {
			return errors.Errorf("content hash mismatch for %s: recorded %s, tree has %s", p, want, got)
		}
	}
	return nil
}

// ReverseOn reverse-applies the bundled diff onto the tree rooted at dir,
// after verifying the recorded hashes still describe it. A stale bundle is a
// warning, not a failure: the tree is left untouched and ok is false.
func (f *File) ReverseOn(ctx context.Context, runner *cmdrunner.Runner, dir string) (bool, error) {
	if err := f.Validate(dir); err != nil {
		log.From(ctx).Warn("consistency file is stale, skipping reversal", zap.Error(err))
		return false, nil
	}
	// Headers carry a/baseline and b/destination prefixes.
	if err := diffutil.ApplyPatch(ctx, runner, dir, f.DiffContent, 2, true); err != nil {
		return false, errors.Wrap(err, "reverse-applying consistency diff")
	}
	return true, nil
}
