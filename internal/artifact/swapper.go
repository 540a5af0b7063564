// Package artifact places built modules into the consumer's dependency
// directory and puts the original contents back afterwards.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/util"
)

const (
	// DependencyDir is the consumer directory modules are swapped into.
	DependencyDir = "node_modules"
	// BackupSuffix is appended to a target to name its backup.
	BackupSuffix = ".bak"
	// MarkerFile is written into every swapped target.
	MarkerFile = "IS_UNDER_WATCH_MODULE"
	// MarkerContent is the content of MarkerFile.
	MarkerContent = "IS_UNDER_WATCH_MODULE"
)

// excluded are the module entries never copied into the target.
var excluded = []string{DependencyDir, ".git"}

// SwapResult describes a completed swap.
type SwapResult struct {
	Target   string
	Duration time.Duration
	Bytes    int64
	Files    int
	// BackedUp is set when this swap created the backup.
	BackedUp bool
}

// String summarizes the swap for log lines.
func (r *SwapResult) String() string {
	//nolint:gosec // G115: byte counts are never negative
	return fmt.Sprintf("%d files, %s", r.Files, humanize.Bytes(uint64(r.Bytes)))
}

// Swapper copies module trees into <consumer>/node_modules/<name>.
// Swaps and restores of the same target are serialized.
type Swapper struct {
	logger      *slog.Logger
	locks       *util.SyncMap[string, *sync.Mutex]
	consumerDir string
}

// NewSwapper creates a Swapper for the project in consumerDir.
func NewSwapper(consumerDir string, logger *slog.Logger) *Swapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Swapper{
		logger:      logger,
		consumerDir: consumerDir,
		locks:       util.NewSyncMap[string, *sync.Mutex](),
	}
}

// Target returns the artifact directory of the module called name.
// Scoped names such as "@acme/ui" map to nested directories.
func (s *Swapper) Target(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.Contains(name, "\\") {
		return "", domainerrors.CopyFailuref("invalid module name %q", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return "", domainerrors.CopyFailuref("invalid module name %q", name)
		}
	}
	return filepath.Join(s.consumerDir, DependencyDir, filepath.FromSlash(name)), nil
}

// BackupPath returns the backup location of target.
func BackupPath(target string) string {
	return target + BackupSuffix
}

// lock returns the mutex of target.
func (s *Swapper) lock(target string) *sync.Mutex {
	if lock, ok := s.locks.Load(target); ok {
		return lock
	}
	actual, _ := s.locks.LoadOrStore(target, &sync.Mutex{})
	return actual
}

// Swap backs up the current target once, copies source over it and writes
// the marker file. Any I/O error is a copy failure; the backup, once made,
// is never touched again by Swap.
func (s *Swapper) Swap(ctx context.Context, name, source string) (*SwapResult, error) {
	start := time.Now()

	target, err := s.Target(name)
	if err != nil {
		return nil, err
	}

	source, err = filepath.EvalSymlinks(source)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "resolve %s", source)
	}

	lock := s.lock(target)
	lock.Lock()
	defer lock.Unlock()

	backedUp, err := s.backup(ctx, target)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "create %s", target)
	}

	stats, err := copyTree(ctx, source, target, func(path string) bool {
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return false
		}
		for _, entry := range excluded {
			if rel == entry {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "copy %s to %s", source, target)
	}

	marker := filepath.Join(target, MarkerFile)
	if err := os.WriteFile(marker, []byte(MarkerContent), 0o644); err != nil { //#nosec G306 -- read by other tools
		return nil, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "write %s", marker)
	}

	result := &SwapResult{
		Target:   target,
		Files:    stats.files,
		Bytes:    stats.bytes,
		BackedUp: backedUp,
		Duration: time.Since(start),
	}
	s.logger.Debug("module swapped",
		slog.String("module", name),
		slog.String("target", target),
		slog.Int("files", result.Files),
		slog.Int64("bytes", result.Bytes),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// backup saves target next to itself unless a backup already exists or
// there is nothing to save. A linked target is saved as the link itself
// and unlinked, so the copy never writes through it.
// Callers must hold the target lock.
func (s *Swapper) backup(ctx context.Context, target string) (bool, error) {
	backup := BackupPath(target)

	if _, err := os.Lstat(backup); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "stat %s", backup)
	}

	info, err := os.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "stat %s", target)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if err := os.Rename(target, backup); err != nil {
			return false, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "back up link %s", target)
		}
		s.logger.Debug("backed up linked module", slog.String("target", target))
		return true, nil
	}

	if !info.IsDir() {
		return false, nil
	}

	// Copy next to the final name first so a crash never leaves a partial
	// backup that would later be restored.
	tmp := backup + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return false, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "clean %s", tmp)
	}
	if _, err := copyTree(ctx, target, tmp, nil); err != nil {
		_ = os.RemoveAll(tmp)
		return false, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "back up %s", target)
	}
	if err := os.Rename(tmp, backup); err != nil {
		_ = os.RemoveAll(tmp)
		return false, domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "back up %s", target)
	}

	s.logger.Debug("created backup", slog.String("target", target), slog.String("backup", backup))
	return true, nil
}
