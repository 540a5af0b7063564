//go:build linux

package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pollTimeout bounds how long the reader waits before rechecking for stop.
const pollTimeout = 100 // milliseconds

// linuxBackend implements WatcherBackend using Linux inotify with IN_CLOSE_WRITE.
type linuxBackend struct {
	base
	watches map[string]int
	wdPaths map[int]string
	fd      int
}

// newLinuxBackend creates a new Linux-specific file watcher backend.
func newLinuxBackend(logger *slog.Logger, opts Options) (*linuxBackend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	b := &linuxBackend{
		fd:      fd,
		watches: make(map[string]int),
		wdPaths: make(map[int]string),
	}
	b.init(logger, opts)
	return b, nil
}

// Watch adds a path to be monitored and reports everything already in it.
func (b *linuxBackend) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	b.addRoot(path, info.IsDir())

	if !info.IsDir() {
		// A single file is watched through its parent directory.
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

// addWatch adds an inotify watch for a path.
func (b *linuxBackend) addWatch(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.watches[path]; exists {
		return nil
	}

	// IN_CLOSE_WRITE: file closed after writing.
	// IN_MOVED_TO: file or directory moved into a watched directory.
	// IN_CREATE: directory created (new directories need a watch).
	// IN_DELETE: file or directory deleted from a watched directory.
	// IN_DELETE_SELF: watched directory itself deleted.
	// IN_MOVED_FROM: file or directory moved out of a watched directory.
	mask := unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF | unix.IN_MOVED_FROM

	wd, err := unix.InotifyAddWatch(b.fd, path, uint32(mask))
	if err != nil {
		return fmt.Errorf("inotify_add_watch failed: %w", err)
	}

	b.watches[path] = wd
	b.wdPaths[wd] = path
	b.logger.Debug("added watch", "path", path, "wd", wd)

	return nil
}

// removeWatches removes the inotify watches for path and every directory below it.
func (b *linuxBackend) removeWatches(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := path + string(filepath.Separator)
	for p, wd := range b.watches {
		if p != path && !strings.HasPrefix(p, prefix) {
			continue
		}
		// The kernel already dropped watches of deleted directories.
		//nolint:gosec // G115: wd is always a small non-negative int from inotify
		_, _ = unix.InotifyRmWatch(b.fd, uint32(wd))
		delete(b.watches, p)
		delete(b.wdPaths, wd)
		b.logger.Debug("removed watch", "path", p, "wd", wd)
	}
}

// Start begins watching for events. It blocks until ctx is cancelled.
func (b *linuxBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.readEvents(ctx)

	<-ctx.Done()
	return nil
}

// readEvents reads events from inotify.
func (b *linuxBackend) readEvents(ctx context.Context) {
	defer b.wg.Done()

	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*64)
	//nolint:gosec // G115: inotify descriptors fit in int32
	fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		default:
		}

		ready, err := unix.Poll(fds, pollTimeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			b.sendError(fmt.Errorf("failed to poll inotify: %w", err))
			return
		}
		if ready == 0 {
			continue
		}

		n, err := unix.Read(b.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			b.sendError(fmt.Errorf("failed to read inotify events: %w", err))
			return
		}

		if n < unix.SizeofInotifyEvent {
			continue
		}

		b.parseEvents(buf[:n])
	}
}

// parseEvents parses raw inotify events.
func (b *linuxBackend) parseEvents(buf []byte) {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		offset += unix.SizeofInotifyEvent + int(event.Len)

		b.mu.Lock()
		dir, ok := b.wdPaths[int(event.Wd)]
		b.mu.Unlock()
		if !ok {
			continue
		}

		name := ""
		if event.Len > 0 {
			nameBytes := buf[offset-int(event.Len) : offset]
			name = string(nameBytes[:clen(nameBytes)])
		}

		b.processEvent(filepath.Join(dir, name), event.Mask)
	}
}

// processEvent processes a single inotify event.
func (b *linuxBackend) processEvent(path string, mask uint32) {
	if mask&unix.IN_IGNORED != 0 {
		return
	}
	if !b.covered(path) || b.skip(path) {
		return
	}

	isDir := mask&unix.IN_ISDIR != 0

	switch {
	case mask&(unix.IN_DELETE|unix.IN_DELETE_SELF|unix.IN_MOVED_FROM) != 0:
		if isDir || mask&unix.IN_DELETE_SELF != 0 {
			b.removeWatches(path)
		}
		for _, event := range b.removed(path) {
			b.emitEvent(event)
		}

	case isDir && mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
		// Files created before the watch was in place are found by the walk.
		for _, event := range b.scan(path, b.addWatch) {
			b.emitEvent(event)
		}

	case mask&(unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO) != 0:
		b.handleFileReady(path)
	}
}

// handleFileReady reports a file that was closed after writing or moved in.
func (b *linuxBackend) handleFileReady(path string) {
	info, err := os.Stat(path)
	if err != nil {
		b.logger.Debug("file vanished before it could be reported", "path", path, "error", err)
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	b.emitEvent(b.fileEvent(path, info))
}

// Stop stops the watcher.
func (b *linuxBackend) Stop() error {
	if !b.shutdown() {
		return nil
	}
	return unix.Close(b.fd)
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := range n {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}

// newFallbackBackend is a stub that should never be called on Linux.
// It exists only to satisfy the compiler when watcher.go references it.
func newFallbackBackend(_ *slog.Logger, _ Options) (WatcherBackend, error) {
	return nil, fmt.Errorf("fallback backend not available on Linux")
}
