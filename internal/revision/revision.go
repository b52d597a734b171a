// Package revision holds the history data model shared by origins and
// destinations: opaque revisions, changes, and sync baselines.
package revision

import "time"

// Labels is an insertion-ordered multimap of metadata keys to values.
// Duplicate values for a key are kept; later values are considered more
// authoritative than earlier ones.
type Labels struct {
	keys   []string
	values map[string][]string
}

func NewLabels() *Labels {
	return &Labels{values: map[string][]string{}}
}

func (l *Labels) Put(key, value string) {
	if l.values == nil {
		l.values = map[string][]string{}
	}
	if _, ok := l.values[key]; !ok {
		l.keys = append(l.keys, key)
	}
	l.values[key] = append(l.values[key], value)
}

func (l *Labels) Get(key string) []string {
	if l == nil {
		return nil
	}
	return l.values[key]
}

func (l *Labels) Has(key string) bool {
	if l == nil {
		return false
	}
	_, ok := l.values[key]
	return ok
}

// Last returns the last value recorded for key, or "" when absent.
func (l *Labels) Last(key string) (string, bool) {
	vs := l.Get(key)
	if len(vs) == 0 {
		return "", false
	}
	return vs[len(vs)-1], true
}

// Keys returns the label keys in first-insertion order.
func (l *Labels) Keys() []string {
	if l == nil {
		return nil
	}
	return l.keys
}

// Revision identifies a point in an origin or destination history. The ID is
// backend-specific and opaque to the engine.
type Revision struct {
	ID         string
	ContextRef string
	Timestamp  time.Time
	Labels     *Labels
}

func (r Revision) String() string {
	return r.ID
}

// Change is a revision plus the commit metadata the traverser exposes to
// visitors.
type Change struct {
	Revision Revision
	Author   string
	Message  string
	Files    []string
}

// Baseline is the most recent origin revision already reflected in the
// destination; the three-way merge ancestor. By construction it is never the
// revision a traversal started from.
type Baseline struct {
	LabelValue string
	Revision   Revision
}
