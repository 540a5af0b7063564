// Package aggregator debounces raw file events into one batch of changed
// paths per module.
package aggregator

import (
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/feed"
	"github.com/listenupapp/watchmodule/internal/hashstore"
	"github.com/listenupapp/watchmodule/internal/watcher"
)

// DefaultWindow is the quiet period after which pending batches are flushed.
const DefaultWindow = 200 * time.Millisecond

// Batch is the set of changed paths of one module since the last flush.
type Batch struct {
	// Key identifies the module, usually its manifest name.
	Key string
	// Root is the module root the paths were matched against.
	Root  string
	Paths []string
}

// FlushFunc receives every non-empty batch of a flush, ordered by key.
type FlushFunc func(batches []Batch)

// Options configures an Aggregator.
type Options struct {
	Logger  *slog.Logger
	Emitter feed.Emitter
	Hashes  *hashstore.Store
	// Window is the debounce window (default: DefaultWindow).
	Window time.Duration
}

// Aggregator routes file events to module batches and flushes them once
// no event arrived for a full window. The timer is reset, not accumulated,
// so a steady stream of events defers the flush.
type Aggregator struct {
	logger  *slog.Logger
	emitter feed.Emitter
	hashes  *hashstore.Store
	flush   FlushFunc
	timer   *time.Timer
	roots   map[string]string              // root -> key
	batches map[string]map[string]struct{} // key -> paths
	window  time.Duration
	mu      sync.Mutex
	// flushMu keeps flush callbacks in order.
	flushMu sync.Mutex
	stopped bool
}

// New creates an Aggregator handing batches to flush.
func New(flush FlushFunc, opts Options) *Aggregator {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = feed.Discard
	}
	if opts.Hashes == nil {
		opts.Hashes = hashstore.New()
	}
	return &Aggregator{
		logger:  opts.Logger,
		emitter: opts.Emitter,
		hashes:  opts.Hashes,
		flush:   flush,
		window:  opts.Window,
		roots:   make(map[string]string),
		batches: make(map[string]map[string]struct{}),
	}
}

// AddRoot registers a module root. Events below root are batched under key.
func (a *Aggregator) AddRoot(root, key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roots[filepath.Clean(root)] = key
}

// RemoveRoot unregisters a module root and drops its pending batch.
func (a *Aggregator) RemoveRoot(root string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	root = filepath.Clean(root)
	if key, ok := a.roots[root]; ok {
		delete(a.batches, key)
		delete(a.roots, root)
	}
}

// Owner returns the key of the single module root containing path.
func (a *Aggregator) Owner(path string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key, _, err := a.owner(path)
	return key, err
}

// owner must be called with a.mu held.
func (a *Aggregator) owner(path string) (key, root string, err error) {
	var matches []string
	for r := range a.roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 1:
		return a.roots[matches[0]], matches[0], nil
	case 0:
		return "", "", domainerrors.Internalf("no watched module owns %s", path)
	default:
		slices.Sort(matches)
		return "", "", domainerrors.Internalf("%s is owned by several watched modules: %s",
			path, strings.Join(matches, ", "))
	}
}

// OnEvent handles one watcher event. Directory events are ignored; changes
// that leave the content hash untouched are discarded. An event no module
// root or several module roots claim is an internal error.
func (a *Aggregator) OnEvent(kind watcher.EventType, path string) error {
	if kind.IsDir() {
		return nil
	}
	path = filepath.Clean(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return nil
	}

	key, _, err := a.owner(path)
	if err != nil {
		return err
	}

	switch kind {
	case watcher.EventAdded, watcher.EventChanged:
		changed, err := a.hashes.Update(path)
		if err != nil {
			// The file may be gone already; its removal event follows.
			a.logger.Debug("failed to hash file", "path", path, "error", err)
		} else if kind == watcher.EventChanged && !changed {
			a.emitter.Emit(feed.LevelDebug, key,
				fmt.Sprintf("file %s has been saved but the content did not change", path))
			return nil
		}
		if kind == watcher.EventChanged {
			a.emitter.Emit(feed.LevelDebug, key, fmt.Sprintf("file changed: %s", path))
		}
	case watcher.EventRemoved:
		a.hashes.Delete(path)
	default:
		return domainerrors.Internalf("unknown event type %s for %s", kind, path)
	}

	batch, ok := a.batches[key]
	if !ok {
		batch = make(map[string]struct{})
		a.batches[key] = batch
	}
	batch[path] = struct{}{}

	a.resetTimer()
	return nil
}

// resetTimer must be called with a.mu held.
func (a *Aggregator) resetTimer() {
	if a.timer == nil {
		a.timer = time.AfterFunc(a.window, a.Flush)
		return
	}
	a.timer.Reset(a.window)
}

// Flush hands every pending batch to the flush callback now.
func (a *Aggregator) Flush() {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	batches := a.takeBatches()
	a.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	a.logger.Debug("flushing change batches", "modules", len(batches))
	a.flush(batches)
}

// takeBatches must be called with a.mu held.
func (a *Aggregator) takeBatches() []Batch {
	if len(a.batches) == 0 {
		return nil
	}

	rootsByKey := make(map[string]string, len(a.roots))
	for root, key := range a.roots {
		rootsByKey[key] = root
	}

	batches := make([]Batch, 0, len(a.batches))
	for _, key := range slices.Sorted(maps.Keys(a.batches)) {
		paths := slices.Sorted(maps.Keys(a.batches[key]))
		if len(paths) == 0 {
			continue
		}
		batches = append(batches, Batch{
			Key:   key,
			Root:  rootsByKey[key],
			Paths: paths,
		})
	}
	clear(a.batches)
	return batches
}

// Pending returns the number of modules with a pending batch.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

// Stop cancels the flush timer and drops pending batches. Later events are
// ignored.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
	clear(a.batches)
}
