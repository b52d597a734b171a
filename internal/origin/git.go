package origin

import (
	"context"

	"github.com/driftsync/driftsync/internal/git"
	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/revision"
)

// GitOrigin reads from a local git repository through go-git.
type GitOrigin struct {
	repo *git.Repository
}

func NewGitOrigin(dir string) (*GitOrigin, error) {
	repo, err := git.Open(dir)
	if err != nil {
		return nil, err
	}
	return &GitOrigin{repo: repo}, nil
}

func (o *GitOrigin) Resolve(_ context.Context, ref string) (revision.Revision, error) {
	hash, err := o.repo.ResolveRevision(ref)
	if err != nil {
		return revision.Revision{}, err
	}
	return revision.Revision{ID: hash, ContextRef: ref}, nil
}

func (o *GitOrigin) Checkout(_ context.Context, rev revision.Revision, dir string, files glob.Glob) error {
	return o.repo.Materialize(rev.ID, dir, files)
}

// FetchPage serves the traverser newest-first log pages ending at start.
func (o *GitOrigin) FetchPage(_ context.Context, start string, offset, limit int) ([]revision.Change, error) {
	commits, err := o.repo.LogPage(start, offset, limit)
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
