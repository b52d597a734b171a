package workdir

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CopyTree copies every file under src into dst, preserving relative paths,
// permission bits, and symlinks. dst is created if needed.
func CopyTree(src, dst string) error {
	err := filepath.WalkDir(src, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case entry.IsDir():
			return os.MkdirAll(target, 0o755)
		case entry.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		default:
			info, err := entry.Info()
			if err != nil {
				return err
			}
			content, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			return os.WriteFile(target, content, info.Mode().Perm())
		}
	})
	return errors.Wrapf(err, "copying %s to %s", src, dst)
}
