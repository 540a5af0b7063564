package artifact

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
)

// DefaultRestoreConcurrency bounds how many modules are restored at once.
const DefaultRestoreConcurrency = 4

// RestoreResult is the outcome of restoring one module.
type RestoreResult struct {
	Err    error
	Name   string
	Target string
	// Restored is false when there was no backup to restore.
	Restored bool
}

// Restorer puts backups made by a Swapper back into place.
type Restorer struct {
	swapper     *Swapper
	logger      *slog.Logger
	removeAll   func(string) error
	rename      func(string, string) error
	concurrency int
}

// NewRestorer creates a Restorer for the targets of swapper.
// A concurrency of zero or less uses DefaultRestoreConcurrency.
func NewRestorer(swapper *Swapper, concurrency int) *Restorer {
	if concurrency <= 0 {
		concurrency = DefaultRestoreConcurrency
	}
	return &Restorer{
		swapper:     swapper,
		logger:      swapper.logger,
		removeAll:   os.RemoveAll,
		rename:      os.Rename,
		concurrency: concurrency,
	}
}

// RestoreAll restores every named module and returns one result per name,
// in the same order. A failing module never stops the others.
func (r *Restorer) RestoreAll(names []string) []RestoreResult {
	results := make([]RestoreResult, len(names))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i] = r.Restore(name)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Restore replaces the target of name with its backup. Without a backup
// it does nothing. On failure the backup is left in place so a later
// attempt can still succeed.
func (r *Restorer) Restore(name string) RestoreResult {
	result := RestoreResult{Name: name}

	target, err := r.swapper.Target(name)
	if err != nil {
		result.Err = err
		return result
	}
	result.Target = target
	backup := BackupPath(target)

	lock := r.swapper.lock(target)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Lstat(backup); errors.Is(err, os.ErrNotExist) {
		return result
	} else if err != nil {
		result.Err = domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "stat %s", backup)
		return result
	}

	if err := r.removeAll(target); err != nil {
		result.Err = domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "remove %s", target)
		return result
	}

	if err := r.rename(backup, target); err != nil {
		r.logger.Debug("rename failed, copying backup instead",
			slog.String("backup", backup), slog.Any("error", err))

		// Restoring must finish even while the process is shutting down.
		if _, err := copyTree(context.Background(), backup, target, nil); err != nil {
			result.Err = domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "copy %s to %s", backup, target)
			return result
		}
		if err := r.removeAll(backup); err != nil {
			result.Err = domainerrors.Wrapf(err, domainerrors.CodeCopyFailure, "remove %s", backup)
			return result
		}
	}

	result.Restored = true
	r.logger.Debug("restored module", slog.String("module", name), slog.String("target", target))
	return result
}
