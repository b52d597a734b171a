// Package git wraps the go-git plumbing the origin and destination backends
// share: opening repositories, resolving revisions, paging history, and
// materializing tree snapshots.
package git

import (
	"io"
	"os"
	"path/filepath"
	"time"

	gitc "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/pkg/errors"

	"github.com/driftsync/driftsync/internal/glob"
)

type Repository struct {
	repo *gitc.Repository
	dir  string
}

// Open opens a pre-existing repository at or above dir.
func Open(dir string) (*Repository, error) {
	repo, err := gitc.PlainOpenWithOptions(dir, &gitc.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening git repository at %s", dir)
	}
	return &Repository{repo: repo, dir: dir}, nil
}

// Init initializes a new non-bare repository in dir. The default branch
// honors the user's global init.defaultBranch and falls back to master.
func Init(dir string) (*Repository, error) {
	reference := plumbing.NewBranchReferenceName(defaultBranch())

	repo, err := gitc.PlainInitWithOptions(dir, &gitc.PlainInitOptions{
		Bare: false,
		InitOptions: gitc.InitOptions{
			DefaultBranch: reference,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "initializing git repository at %s", dir)
	}
	return &Repository{repo: repo, dir: dir}, nil
}

func defaultBranch() string {
	if cfg, _ := config.LoadConfig(config.GlobalScope); cfg != nil {
		if branch := cfg.Raw.Section("init").Options.Get("defaultBranch"); branch != "" {
			return branch
		}
	}
	return "master"
}

func (r *Repository) Dir() string {
	return r.dir
}

// ResolveRevision resolves a ref ("HEAD", a branch, a tag, a hash prefix) to
// a full commit hash.
func (r *Repository) ResolveRevision(ref string) (string, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", errors.Wrapf(err, "resolving revision %q", ref)
	}
	return h.String(), nil
}

func (r *Repository) HeadHash() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "reading HEAD")
	}
	return head.Hash().String(), nil
}

// Commit is one history entry with the file paths it touched relative to the
// repository root.
type Commit struct {
	Hash    string
	Author  string
	Message string
	When    time.Time
	Files   []string
}

// LogPage returns up to limit commits starting offset entries below start,
// newest first, the order git log emits them in.
func (r *Repository) LogPage(start string, offset, limit int) ([]Commit, error) {
	iter, err := r.repo.Log(&gitc.LogOptions{From: plumbing.NewHash(start)})
	if err != nil {
		return nil, errors.Wrapf(err, "reading log from %s", start)
	}
	defer iter.Close()

	var page []Commit
	seen := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if seen < offset {
			seen++
			return nil
		}
		if len(page) >= limit {
			return storer.ErrStop
		}
		files, err := changedFiles(c)
		if err != nil {
			return err
		}
		page = append(page, Commit{
			Hash:    c.Hash.String(),
			Author:  c.Author.String(),
			Message: c.Message,
			When:    c.Author.When,
			Files:   files,
		})
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, errors.Wrap(err, "iterating log")
	}
	return page, nil
}

func changedFiles(c *object.Commit) ([]string, error) {
	stats, err := c.Stats()
	if err != nil {
		return nil, errors.Wrapf(err, "computing stats for %s", c.Hash)
	}
	files := make([]string, 0, len(stats))
	for _, s := range stats {
		files = append(files, s.Name)
	}
	return files, nil
}

// Materialize writes the files of the commit's tree matched by files into
// dir. Executable bits survive; symlinks are recreated as symlinks.
func (r *Repository) Materialize(hash, dir string, files glob.Glob) error {
	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return errors.Wrapf(err, "loading commit %s", hash)
	}
	tree, err := commit.Tree()
	if err != nil {
		return errors.Wrapf(err, "loading tree of %s", hash)
	}

	return tree.Files().ForEach(func(f *object.File) error {
		if !files.Matches(f.Name) {
			return nil
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		reader, err := f.Blob.Reader()
		if err != nil {
			return errors.Wrapf(err, "reading blob for %s", f.Name)
		}
		defer reader.Close()

		if f.Mode == filemode.Symlink {
			link, err := io.ReadAll(reader)
			if err != nil {
				return err
			}
			return os.Symlink(string(link), target)
		}

		perm := os.FileMode(0o644)
		if f.Mode == filemode.Executable {
			perm = 0o755
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, reader); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

// ShowFile returns the content of one path at the given commit. The boolean
// is false when the path does not exist in that tree.
func (r *Repository) ShowFile(hash, path string) ([]byte, bool, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, false, errors.Wrapf(err, "loading commit %s", hash)
	}
	f, err := commit.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "loading %s at %s", path, hash)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, false, err
	}
	return []byte(content), true, nil
}

// Author identifies the committer used for published changes.
type Author struct {
	Name  string
	Email string
}

// CommitAll stages every change in the working tree and commits it. Returns
// the new commit hash.
func (r *Repository) CommitAll(message string, author Author) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "opening worktree")
	}
	if err := wt.AddWithOptions(&gitc.AddOptions{All: true}); err != nil {
		return "", errors.Wrap(err, "staging changes")
	}

	sig := &object.Signature{Name: author.Name, Email: author.Email, When: time.Now()}
	hash, err := wt.Commit(message, &gitc.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		return "", errors.Wrap(err, "committing")
	}
	return hash.String(), nil
}

// Checkout moves the working tree to the given commit, detaching HEAD.
func (r *Repository) Checkout(hash string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "opening worktree")
	}
	return wt.Checkout(&gitc.CheckoutOptions{Hash: plumbing.NewHash(hash), Force: true})
}

// HeadBranch returns the branch HEAD points at; ok is false when HEAD is
// detached.
func (r *Repository) HeadBranch() (string, bool, error) {
	ref, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", false, errors.Wrap(err, "reading HEAD")
	}
	if ref.Type() != plumbing.SymbolicReference || !ref.Target().IsBranch() {
		return "", false, nil
	}
	return ref.Target().Short(), true, nil
}

// SetBranch points the branch at the given commit and re-attaches HEAD to it.
func (r *Repository) SetBranch(branch, hash string) error {
	name := plumbing.NewBranchReferenceName(branch)
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(name, plumbing.NewHash(hash))); err != nil {
		return errors.Wrapf(err, "updating branch %s", branch)
	}
	if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, name)); err != nil {
		return errors.Wrap(err, "re-attaching HEAD")
	}
	return nil
}
