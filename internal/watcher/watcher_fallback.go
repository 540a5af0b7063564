//go:build !linux

package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fallbackBackend implements WatcherBackend using fsnotify. Writes are
// reported once the file size and mtime stop moving for SettleDelay.
type fallbackBackend struct {
	base
	watcher *fsnotify.Watcher

	pending   map[string]*pendingEvent // path -> pending event info
	pendingMu sync.Mutex               // protects pending map
}

// pendingEvent tracks a file that may still be changing
type pendingEvent struct {
	modTime time.Time
	timer   *time.Timer
	size    int64
}

// newFallbackBackend creates a fallback backend using fsnotify
func newFallbackBackend(logger *slog.Logger, opts Options) (*fallbackBackend, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	b := &fallbackBackend{
		watcher: watcher,
		pending: make(map[string]*pendingEvent),
	}
	b.init(logger, opts)
	return b, nil
}

// Watch adds a path to be monitored and reports everything already in it.
func (b *fallbackBackend) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	b.addRoot(path, info.IsDir())

	if !info.IsDir() {
		if err := b.addWatch(filepath.Dir(path)); err != nil {
			return err
		}
		b.emitAsync([]Event{b.fileEvent(path, info)})
		return nil
	}

	if err := b.addWatch(path); err != nil {
		return err
	}
	b.emitAsync(b.scan(path, b.addWatch))
	return nil
}

// addWatch adds a non-recursive fsnotify watch; adding twice is harmless.
func (b *fallbackBackend) addWatch(path string) error {
	if err := b.watcher.Add(path); err != nil {
		return fmt.Errorf("fsnotify add failed: %w", err)
	}
	b.logger.Debug("added watch", "path", path)
	return nil
}

// Start begins watching for events. It blocks until ctx is cancelled.
func (b *fallbackBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.processEvents(ctx)

	<-ctx.Done()
	return nil
}

// processEvents processes fsnotify events
func (b *fallbackBackend) processEvents(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleFsnotifyEvent(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.sendError(err)
		}
	}
}

// handleFsnotifyEvent handles an fsnotify event
func (b *fallbackBackend) handleFsnotifyEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if !b.covered(path) || b.skip(path) {
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		b.cancelPending(path)
		_ = b.watcher.Remove(path) // only succeeds for directories
		for _, e := range b.removed(path) {
			b.emitEvent(e)
		}
		return
	}

	if event.Op&fsnotify.Create != 0 {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			for _, e := range b.scan(path, b.addWatch) {
				b.emitEvent(e)
			}
			return
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		b.startSettling(path)
	}
}

// startSettling begins the settling process for a file
func (b *fallbackBackend) startSettling(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		b.cancelPending(path)
		return
	}

	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if pending, exists := b.pending[path]; exists {
		pending.timer.Stop()
	}

	b.pending[path] = &pendingEvent{
		size:    info.Size(),
		modTime: info.ModTime(),
		timer: time.AfterFunc(b.opts.SettleDelay, func() {
			b.checkSettled(path)
		}),
	}
}

// checkSettled checks if a file has finished settling
func (b *fallbackBackend) checkSettled(path string) {
	b.pendingMu.Lock()

	pending, exists := b.pending[path]
	if !exists {
		b.pendingMu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Deleted while settling; the Remove event reports it.
		delete(b.pending, path)
		b.pendingMu.Unlock()
		return
	}

	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		// Still changing, restart timer
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(b.opts.SettleDelay, func() {
			b.checkSettled(path)
		})
		b.pendingMu.Unlock()
		return
	}

	delete(b.pending, path)
	b.pendingMu.Unlock()

	b.emitEvent(b.fileEvent(path, info))
}

// cancelPending cancels a pending event
func (b *fallbackBackend) cancelPending(path string) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if pending, exists := b.pending[path]; exists {
		pending.timer.Stop()
		delete(b.pending, path)
	}
}

// Stop stops the watcher
func (b *fallbackBackend) Stop() error {
	b.pendingMu.Lock()
	for _, pending := range b.pending {
		pending.timer.Stop()
	}
	clear(b.pending)
	b.pendingMu.Unlock()

	if !b.shutdown() {
		return nil
	}
	return b.watcher.Close()
}

// newLinuxBackend is a stub that should never be called on non-Linux platforms
// It exists only to satisfy the compiler when watcher.go references it
func newLinuxBackend(_ *slog.Logger, _ Options) (WatcherBackend, error) {
	return nil, fmt.Errorf("Linux backend not available on this platform")
}
