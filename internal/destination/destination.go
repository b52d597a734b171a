// Package destination is the write side of a sync: materializing prior
// destination trees and publishing new ones tagged with the sync label.
package destination

import (
	"context"

	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/history"
	"github.com/driftsync/driftsync/internal/revision"
)

// Reader materializes any prior destination revision's tree, filtered by
// glob, into a local directory.
type Reader interface {
	CopyDestinationFiles(ctx context.Context, ref string, files glob.Glob, dir string) (revision.Revision, error)
}

// Writer publishes a staged tree as a new destination change carrying the
// sync label.
type Writer interface {
	Publish(ctx context.Context, dir, message, labelKey, labelValue string) (string, error)
}

// PatchRegenerator is the destination-specific part of a regenerate run.
// Baseline and target inference vary per backend, so they are injected
// capabilities rather than orchestrator logic; either may report that
// nothing could be inferred, which the orchestrator turns into a
// configuration error.
type PatchRegenerator interface {
	InferBaseline(ctx context.Context) (string, bool, error)
	InferTarget(ctx context.Context) (string, bool, error)
	UpdateChange(ctx context.Context, name, dir string, files glob.Glob, target string) (string, error)
}

// Destination bundles everything a workflow needs from its destination
// backend, including history access for baseline resolution against
// destination commits.
type Destination interface {
	Reader
	Writer
	PatchRegenerator
	history.Pager
}
