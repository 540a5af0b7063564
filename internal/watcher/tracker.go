package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// base holds what every backend shares: the output channels, the watched
// roots and the set of paths already reported, which is what tells an
// addition apart from a change.
type base struct {
	logger *slog.Logger
	roots  map[string]bool // path -> is directory
	// ignored holds prefixes added after construction.
	ignored []string
	files  map[string]struct{}
	dirs   map[string]struct{}
	events chan Event
	errors chan error
	done   chan struct{}
	opts   Options
	wg     sync.WaitGroup
	mu     sync.Mutex
	// closeMu guards closed; senders hold it for reading.
	closeMu  sync.RWMutex
	stopOnce sync.Once
	closed   bool
}

func (b *base) init(logger *slog.Logger, opts Options) {
	b.logger = logger
	b.opts = opts
	b.roots = make(map[string]bool)
	b.files = make(map[string]struct{})
	b.dirs = make(map[string]struct{})
	b.events = make(chan Event, 100)
	b.errors = make(chan error, 10)
	b.done = make(chan struct{})
}

// addRoot registers a path passed to Watch.
func (b *base) addRoot(path string, isDir bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roots[path] = isDir
}

// Ignore adds paths that are never reported, together with everything
// below them. It applies to events that arrive after the call.
func (b *base) Ignore(paths ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		b.ignored = append(b.ignored, filepath.Clean(p))
	}
}

// skip reports whether path is filtered out by the options or by Ignore.
func (b *base) skip(path string) bool {
	if b.opts.shouldIgnore(path) {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return underAny(filepath.Clean(path), b.ignored)
}

// covered reports whether path is a watched file or lies below a watched
// directory. Watching a single file watches its parent, so siblings must
// be filtered out here.
func (b *base) covered(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for root, isDir := range b.roots {
		if path == root {
			return true
		}
		if isDir && strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// fileEvent records path as a known file and returns the event reporting it.
func (b *base) fileEvent(path string, info os.FileInfo) Event {
	b.mu.Lock()
	_, known := b.files[path]
	b.files[path] = struct{}{}
	b.mu.Unlock()

	eventType := EventAdded
	if known {
		eventType = EventChanged
	}
	return Event{
		Type:    eventType,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// trackDir records path as a known directory. It returns false when the
// directory was already known.
func (b *base) trackDir(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, known := b.dirs[path]; known {
		return false
	}
	b.dirs[path] = struct{}{}
	return true
}

// removed forgets path and everything below it and returns the events
// describing what disappeared: files first, then directories deepest first.
// Unknown paths produce no events.
func (b *base) removed(path string) []Event {
	prefix := path + string(filepath.Separator)

	b.mu.Lock()
	var files, dirs []string
	for f := range b.files {
		if f == path || strings.HasPrefix(f, prefix) {
			files = append(files, f)
			delete(b.files, f)
		}
	}
	for d := range b.dirs {
		if d == path || strings.HasPrefix(d, prefix) {
			dirs = append(dirs, d)
			delete(b.dirs, d)
		}
	}
	b.mu.Unlock()

	slices.Sort(files)
	slices.Sort(dirs)
	slices.Reverse(dirs)

	events := make([]Event, 0, len(files)+len(dirs))
	for _, f := range files {
		events = append(events, Event{Type: EventRemoved, Path: f})
	}
	for _, d := range dirs {
		events = append(events, Event{Type: EventDirRemoved, Path: d})
	}
	return events
}

// scan walks root, watching every directory with addWatch, and returns the
// events for every file and directory not seen before.
func (b *base) scan(root string, addWatch func(string) error) []Event {
	var events []Event

	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			b.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}

		if b.skip(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if err := addWatch(p); err != nil {
				b.logger.Error("failed to add watch", "path", p, "error", err)
				return filepath.SkipDir
			}
			if b.trackDir(p) {
				events = append(events, Event{Type: EventDirAdded, Path: p})
			}
			return nil
		}

		// Follows symlinks so linked files are reported like regular ones.
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		events = append(events, b.fileEvent(p, info))
		return nil
	})

	return events
}

// emitEvent sends an event unless the backend is stopping.
func (b *base) emitEvent(event Event) bool {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.events <- event:
		return true
	case <-b.done:
		return false
	}
}

// emitAsync sends events from a new goroutine so Watch never blocks on a
// consumer that has not started reading yet.
func (b *base) emitAsync(events []Event) {
	if len(events) == 0 {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, event := range events {
			if !b.emitEvent(event) {
				return
			}
		}
	}()
}

// sendError reports an error unless the backend is stopping.
func (b *base) sendError(err error) {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.errors <- err:
	case <-b.done:
	}
}

// Events returns the events channel.
func (b *base) Events() <-chan Event {
	return b.events
}

// Errors returns the errors channel.
func (b *base) Errors() <-chan error {
	return b.errors
}

// shutdown signals every goroutine, waits for them and closes the channels.
// It returns false when it already ran.
func (b *base) shutdown() bool {
	first := false
	b.stopOnce.Do(func() {
		first = true
		close(b.done)
	})
	if !first {
		return false
	}

	b.wg.Wait()

	b.closeMu.Lock()
	b.closed = true
	close(b.events)
	close(b.errors)
	b.closeMu.Unlock()
	return true
}
