// Package glob implements the include/exclude path matching that scopes every
// migration step. Patterns use forward slashes and ** wildcards. Excludes are
// only meaningful where they overlap includes.
package glob

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
)

type Glob struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// All matches every path.
func All() Glob {
	return Glob{Includes: []string{"**"}}
}

func New(includes []string, excludes ...string) Glob {
	return Glob{Includes: includes, Excludes: excludes}
}

// Matches reports whether the slash-separated relative path is covered by the
// includes and not carved out by the excludes.
func (g Glob) Matches(path string) bool {
	path = strings.TrimPrefix(path, "/")

	included := false
	for _, pattern := range g.Includes {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, pattern := range g.Excludes {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return false
		}
	}

	return true
}

// Difference returns a copy of g that additionally excludes everything other
// includes. Used to strip autopatch directories out of destination checkouts.
func (g Glob) Difference(other Glob) Glob {
	return Glob{
		Includes: append([]string{}, g.Includes...),
		Excludes: append(append([]string{}, g.Excludes...), other.Includes...),
	}
}

// Roots returns the literal directory prefixes of the include patterns, with
// descendants of another root removed. An empty string means the whole tree.
// Change relevance filtering only needs these prefixes, not full matching.
func (g Glob) Roots() []string {
	roots := lo.Uniq(lo.Map(g.Includes, func(pattern string, _ int) string {
		return literalPrefixDir(pattern)
	}))

	sort.Strings(roots)

	var reduced []string
	for _, root := range roots {
		if root == "" {
			return []string{""}
		}
		covered := false
		for _, kept := range reduced {
			if strings.HasPrefix(root+"/", kept+"/") {
				covered = true
				break
			}
		}
		if !covered {
			reduced = append(reduced, root)
		}
	}

	return reduced
}

// RootsCover reports whether any of the glob's roots contains the given path.
func (g Glob) RootsCover(path string) bool {
	for _, root := range g.Roots() {
		if root == "" || path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}

func literalPrefixDir(pattern string) string {
	if i := strings.IndexAny(pattern, "*?[{"); i >= 0 {
		pattern = pattern[:i]
	} else {
		// A fully literal pattern names a file; its root is the parent dir.
	}
	if j := strings.LastIndex(pattern, "/"); j >= 0 {
		return pattern[:j]
	}
	return ""
}
