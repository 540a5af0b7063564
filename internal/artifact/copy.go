package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/otiai10/copy"
)

// copyStats counts what a copy wrote.
type copyStats struct {
	files int
	bytes int64
}

// copyTree copies src into dst recursively. Modes are preserved and
// symlinks are copied as links. Entries for which skip returns true are
// left out, directories with everything below them. Existing files in dst
// are overwritten; files only present in dst are kept.
func copyTree(ctx context.Context, src, dst string, skip func(path string) bool) (copyStats, error) {
	var stats copyStats
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	err := copy.Copy(src, dst, copy.Options{
		OnSymlink:         func(string) copy.SymlinkAction { return copy.Shallow },
		PermissionControl: writableDirs,
		Skip: func(info os.FileInfo, path, out string) (bool, error) {
			if err := ctx.Err(); err != nil {
				return true, err
			}
			if skip != nil && skip(path) {
				return true, nil
			}

			mode := info.Mode()
			switch {
			case mode&fs.ModeSymlink != 0, mode.IsDir():
			case mode.IsRegular():
				stats.files++
				stats.bytes += info.Size()
			default:
				// Sockets, devices and pipes have no place in a package.
				return true, nil
			}
			return false, clearConflict(info, out)
		},
	})

	return stats, err
}

// writableDirs preserves modes but keeps copied directories writable by
// their owner, so a later swap can write into them.
func writableDirs(info fs.FileInfo, dest string) (func(*error), error) {
	if info.IsDir() {
		return copy.AddPermission(0o700)(info, dest)
	}
	return copy.PerservePermission(info, dest)
}

// clearConflict removes whatever sits at dst when it is a link or differs
// in kind from the entry about to be copied there. Writing through a link
// would modify its target.
func clearConflict(src fs.FileInfo, dst string) error {
	info, err := os.Lstat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink == 0 && info.Mode().Type() == src.Mode().Type() {
		return nil
	}
	return os.RemoveAll(dst)
}
