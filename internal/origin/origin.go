// Package origin is the read side of a sync: resolving refs, materializing
// tree snapshots, and serving history pages to the traverser.
package origin

import (
	"context"

	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/history"
	"github.com/driftsync/driftsync/internal/revision"
)

// Origin is what the engine needs from the repository being imported.
// Concrete backends resolve refs to opaque revisions, write tree snapshots,
// and page through history for baseline resolution.
type Origin interface {
	history.Pager

	Resolve(ctx context.Context, ref string) (revision.Revision, error)
	Checkout(ctx context.Context, rev revision.Revision, dir string, files glob.Glob) error
}
