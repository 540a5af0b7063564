// Package watcher reports file additions, changes and removals below a set
// of watched paths.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
)

// Watcher monitors file system changes
type Watcher struct {
	backend WatcherBackend
	logger  *slog.Logger
}

// New creates a new file watcher
// The watcher automatically selects the best backend for the current platform:
// - Linux: Uses inotify with IN_CLOSE_WRITE, so a file is reported once it is fully written
// - Others: Uses fsnotify and waits for writes to settle.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	var backend WatcherBackend
	var err error

	if runtime.GOOS == "linux" {
		backend, err = newLinuxBackend(logger, opts)
		logger.Debug("using Linux inotify backend with IN_CLOSE_WRITE")
	} else {
		backend, err = newFallbackBackend(logger, opts)
		logger.Debug("using fsnotify fallback backend", "platform", runtime.GOOS)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	return &Watcher{
		backend: backend,
		logger:  logger,
	}, nil
}

// Watch adds a path to be monitored
// The path can be a file or directory. Directories are watched recursively.
func (w *Watcher) Watch(path string) error {
	return w.backend.Watch(path)
}

// Ignore excludes paths, and everything below them, from later events.
// Call it before Watch so an initial scan already skips them.
func (w *Watcher) Ignore(paths ...string) {
	w.backend.Ignore(paths...)
}

// Start begins watching for events
// This method blocks until the context is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	return w.backend.Start(ctx)
}

// Stop stops the watcher and releases resources
func (w *Watcher) Stop() error {
	return w.backend.Stop()
}

// Events returns the channel for receiving file system events
func (w *Watcher) Events() <-chan Event {
	return w.backend.Events()
}

// Errors returns the channel for receiving errors
func (w *Watcher) Errors() <-chan error {
	return w.backend.Errors()
}
