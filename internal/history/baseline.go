package history

import (
	"context"

	"github.com/driftsync/driftsync/internal/revision"
)

// Resolver finds the last change before a starting revision that carries the
// sync label.
type Resolver struct {
	traverser *Traverser
	pageSize  int
}

func NewResolver(traverser *Traverser, pageSize int) *Resolver {
	return &Resolver{traverser: traverser, pageSize: pageSize}
}

// Resolve walks history ending at start looking for label and returns the
// most recent match: the three-way merge ancestor. The start revision itself
// is never returned as its own baseline, even when it carries the label.
// When a change carries several values for the label, the last one wins.
// Exhausting history without a match is a normal outcome: ok is false and
// err is nil.
//
// Changes are visited oldest to newest, so the resolver keeps overwriting
// its candidate; terminating on the first match would hand back the oldest
// sync point and a wrong merge ancestor after the second sync.
func (r *Resolver) Resolve(ctx context.Context, start revision.Revision, label string) (revision.Baseline, bool, error) {
	var (
		baseline revision.Baseline
		found    bool
	)

	visitor := VisitorFunc(func(change revision.Change) VisitResult {
		if change.Revision.ID == start.ID {
			return Continue
		}
		value, ok := change.Revision.Labels.Last(label)
		if !ok {
			return Continue
		}
		baseline = revision.Baseline{LabelValue: value, Revision: change.Revision}
		found = true
		return Continue
	})

	if err := r.traverser.VisitChanges(ctx, start.ID, visitor, r.pageSize); err != nil {
		return revision.Baseline{}, false, err
	}

	return baseline, found, nil
}
