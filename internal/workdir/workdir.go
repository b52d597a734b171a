// Package workdir manages the scratch directories a single run works in.
// Every run gets its own root under the system temp dir, and the root is
// removed recursively on every exit path so runs never see each other's
// leftovers.
package workdir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/driftsync/driftsync/internal/env"
)

type Dir struct {
	root string
}

// New creates a fresh scratch root. prefix shows up in the directory name to
// make stray dirs attributable when cleanup is interrupted.
func New(prefix string) (*Dir, error) {
	root, err := os.MkdirTemp("", prefix+"-")
	if err != nil {
		return nil, errors.Wrap(err, "creating scratch root")
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Root() string {
	return d.root
}

// Sub creates (or reuses) a named directory under the root.
func (d *Dir) Sub(name string) (string, error) {
	sub := filepath.Join(d.root, name)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating scratch dir %s", name)
	}
	return sub, nil
}

// Cleanup removes the root and everything under it. Safe to defer
// unconditionally. Local dev keeps the scratch tree around for inspection.
func (d *Dir) Cleanup() error {
	if d == nil || d.root == "" {
		return nil
	}
	if env.IsLocalDev() {
		return nil
	}
	return os.RemoveAll(d.root)
}
