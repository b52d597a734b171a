package destination

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/driftsync/driftsync/internal/git"
	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/revision"
)

// GitDestination publishes into a local git checkout through go-git. The
// configured glob scopes which worktree files a publish may delete; files
// outside it are never touched.
type GitDestination struct {
	repo     *git.Repository
	files    glob.Glob
	author   git.Author
	labelKey string
}

func NewGitDestination(dir string, files glob.Glob, author git.Author, labelKey string) (*GitDestination, error) {
	repo, err := git.Open(dir)
	if err != nil {
		return nil, err
	}
	return &GitDestination{repo: repo, files: files, author: author, labelKey: labelKey}, nil
}

// Resolve maps a destination ref to a revision.
func (d *GitDestination) Resolve(_ context.Context, ref string) (revision.Revision, error) {
	hash, err := d.repo.ResolveRevision(ref)
	if err != nil {
		return revision.Revision{}, err
	}
	return revision.Revision{ID: hash, ContextRef: ref}, nil
}

func (d *GitDestination) CopyDestinationFiles(_ context.Context, ref string, files glob.Glob, dir string) (revision.Revision, error) {
	hash, err := d.repo.ResolveRevision(ref)
	if err != nil {
		return revision.Revision{}, err
	}
	if err := d.repo.Materialize(hash, dir, files); err != nil {
		return revision.Revision{}, err
	}
	return revision.Revision{ID: hash, ContextRef: ref}, nil
}

// ReadFile returns one path's content at a ref, without materializing the
// whole tree. Used to load a consistency file from a prior revision.
func (d *GitDestination) ReadFile(_ context.Context, ref, path string) ([]byte, bool, error) {
	hash, err := d.repo.ResolveRevision(ref)
	if err != nil {
		return nil, false, err
	}
	return d.repo.ShowFile(hash, path)
}

// Publish stages dir into the worktree and commits it, appending the sync
// label as a message trailer.
func (d *GitDestination) Publish(_ context.Context, dir, message, labelKey, labelValue string) (string, error) {
	if err := syncTree(d.repo.Dir(), dir, d.files); err != nil {
		return "", err
	}
	full := message + "\n\n" + labelKey + ": " + labelValue + "\n"
	return d.repo.CommitAll(full, d.author)
}

// InferBaseline walks destination history from HEAD looking for the last
// published change carrying the sync label key configured on any label line.
func (d *GitDestination) InferBaseline(ctx context.Context) (string, bool, error) {
	return d.findLabeledCommit(ctx)
}

// InferTarget defaults to the current HEAD; the tree with the manual edits.
// A repository without commits yet has no target to infer.
func (d *GitDestination) InferTarget(context.Context) (string, bool, error) {
	head, err := d.repo.HeadHash()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return head, true, nil
}

func (d *GitDestination) findLabeledCommit(_ context.Context) (string, bool, error) {
	head, err := d.repo.HeadHash()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	offset := 0
	const pageSize = 50
	for {
		commits, err := d.repo.LogPage(head, offset, pageSize)
		if err != nil {
			return "", false, err
		}
		if len(commits) == 0 {
			return "", false, nil
		}
		for _, c := range commits {
			if revision.ParseMessageLabels(c.Message).Has(d.labelKey) {
				return c.Hash, true, nil
			}
		}
		if len(commits) < pageSize {
			return "", false, nil
		}
		offset += pageSize
	}
}

// UpdateChange replaces the glob-scoped part of the tree at target with dir
// and commits the result on top of it. When target is not the current HEAD
// the worktree is moved there first, and the branch is pointed at the new
// commit afterwards so it is not stranded on a detached HEAD.
func (d *GitDestination) UpdateChange(_ context.Context, name, dir string, files glob.Glob, target string) (string, error) {
	hash, err := d.repo.ResolveRevision(target)
	if err != nil {
		return "", err
	}
	head, err := d.repo.HeadHash()
	if err != nil {
		return "", err
	}
	branch, onBranch, err := d.repo.HeadBranch()
	if err != nil {
		return "", err
	}

	if hash != head {
		if err := d.repo.Checkout(hash); err != nil {
			return "", err
		}
	}
	if err := syncTree(d.repo.Dir(), dir, files); err != nil {
		return "", err
	}
	rev, err := d.repo.CommitAll("Regenerate patch state for "+name, d.author)
	if err != nil {
		return "", err
	}

	if hash != head && onBranch {
		if err := d.repo.SetBranch(branch, rev); err != nil {
			return "", err
		}
	}
	return rev, nil
}

// FetchPage serves newest-first destination history pages for baseline
// resolution against published changes.
func (d *GitDestination) FetchPage(_ context.Context, start string, offset, limit int) ([]revision.Change, error) {
	commits, err := d.repo.LogPage(start, offset, limit)
	if err != nil {
		return nil, err
	}
	changes := make([]revision.Change, 0, len(commits))
	for _, c := range commits {
		changes = append(changes, revision.Change{
			Revision: revision.Revision{
				ID:        c.Hash,
				Timestamp: c.When,
				Labels:    revision.ParseMessageLabels(c.Message),
			},
			Author:  c.Author,
			Message: c.Message,
			Files:   c.Files,
		})
	}
	return changes, nil
}

// syncTree makes the glob-scoped part of worktree mirror staged: files
// missing from staged are deleted, everything in staged is copied over.
func syncTree(worktree, staged string, files glob.Glob) error {
	err := filepath.WalkDir(worktree, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(worktree, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !files.Matches(rel) {
			return nil
		}
		if _, err := os.Lstat(filepath.Join(staged, filepath.FromSlash(rel))); os.IsNotExist(err) {
			return os.Remove(p)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "pruning worktree")
	}

	err = filepath.WalkDir(staged, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(staged, p)
		if err != nil {
			return err
		}
		target := filepath.Join(worktree, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		if entry.Type()&fs.ModeSymlink != 0 {
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, content, info.Mode().Perm())
	})
	return errors.Wrap(err, "copying staged tree")
}
