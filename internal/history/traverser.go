// Package history implements paginated, oldest-to-newest traversal of origin
// history and baseline resolution on top of it.
package history

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/driftsync/driftsync/internal/glob"
	"github.com/driftsync/driftsync/internal/revision"
)

// VisitResult tells the traverser whether to keep going.
type VisitResult int

const (
	Continue VisitResult = iota
	Terminate
)

// Visitor observes changes in strict oldest-to-newest order.
type Visitor interface {
	Visit(change revision.Change) VisitResult
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(change revision.Change) VisitResult

func (f VisitorFunc) Visit(change revision.Change) VisitResult {
	return f(change)
}

// Pager fetches fixed-size pages of history ending at start. Pages come back
// newest-first, the way backends naturally return log output. offset skips
// that many changes from start.
type Pager interface {
	FetchPage(ctx context.Context, start string, offset, limit int) ([]revision.Change, error)
}

const DefaultPageSize = 200

// Traverser drives a Pager and presents changes to a visitor in global
// chronological order, across page boundaries. Changes touching none of the
// glob's roots never reach the visitor.
type Traverser struct {
	pager Pager
	files glob.Glob
}

func NewTraverser(pager Pager, files glob.Glob) *Traverser {
	return &Traverser{pager: pager, files: files}
}

// VisitChanges walks the history ending at start and presents every relevant
// change to the visitor, strictly oldest to newest regardless of page size.
// Pages arrive newest-first from the backend, so all pages are fetched before
// visiting starts; a Terminate short-circuits the visiting, and cancellation
// is checked between page fetches.
func (t *Traverser) VisitChanges(ctx context.Context, start string, visitor Visitor, pageSize int) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var pages [][]revision.Change
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "history traversal cancelled")
		}

		page, err := t.pager.FetchPage(ctx, start, offset, pageSize)
		if err != nil {
			return errors.Wrapf(err, "fetching history page at offset %d", offset)
		}
		if len(page) == 0 {
			break
		}
		pages = append(pages, page)
		if len(page) < pageSize {
			break
		}
	}

	// The last page is the oldest; each page is newest-first internally.
	for i := len(pages) - 1; i >= 0; i-- {
		for _, change := range lo.Reverse(pages[i]) {
			if !t.relevant(change) {
				continue
			}
			if visitor.Visit(change) == Terminate {
				return nil
			}
		}
	}
	return nil
}

func (t *Traverser) relevant(change revision.Change) bool {
	for _, file := range change.Files {
		if t.files.RootsCover(file) {
			return true
		}
	}
	return false
}
