// Package feed carries user-facing log lines from the build engine to the
// presentation layer over channels.
package feed

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// System is the module name used for lines that belong to no module.
const System = "watch-module"

// Level is the severity of a line.
type Level int

const (
	// LevelDebug lines are only recorded in verbose mode.
	LevelDebug Level = iota
	// LevelInfo lines report normal progress.
	LevelInfo
	// LevelWarn lines report recoverable problems.
	LevelWarn
	// LevelError lines report failures.
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Line is one entry of the feed.
type Line struct {
	Time   time.Time
	Module string
	Text   string
	Index  int
	Level  Level
	// Replaced is set when the line overwrites the line at Index.
	Replaced bool
}

// Emitter is what the engine needs from a log feed.
type Emitter interface {
	// Emit appends a line and returns its index, or -1 when the level is
	// filtered out.
	Emit(level Level, module, text string) int
	// Replace overwrites the line at index unless a later line exists for
	// the same module, in which case the line is appended. It returns the
	// index the line ended up at.
	Replace(index int, level Level, module, text string) int
}

// Options configures a Feed.
type Options struct {
	// Verbose records debug lines.
	Verbose bool
	// Buffer is the per-subscriber channel capacity (default: 256).
	Buffer int
}

// Feed stores every emitted line and broadcasts it to subscribers.
type Feed struct {
	logger *slog.Logger
	subs   map[int]chan Line
	lines  []Line
	opts   Options
	nextID int
	mu     sync.RWMutex
	closed bool
}

// New creates a Feed.
func New(logger *slog.Logger, opts Options) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	return &Feed{
		logger: logger,
		opts:   opts,
		subs:   make(map[int]chan Line),
	}
}

// Emit implements Emitter.
func (f *Feed) Emit(level Level, module, text string) int {
	if level == LevelDebug && !f.opts.Verbose {
		return -1
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	line := Line{
		Time:   time.Now(),
		Module: module,
		Text:   text,
		Index:  len(f.lines),
		Level:  level,
	}
	f.lines = append(f.lines, line)
	f.broadcast(line)

	return line.Index
}

// Replace implements Emitter.
func (f *Feed) Replace(index int, level Level, module, text string) int {
	f.mu.Lock()

	if index < 0 || index >= len(f.lines) || f.hasLaterLine(index, module) {
		f.mu.Unlock()
		return f.Emit(level, module, text)
	}
	defer f.mu.Unlock()

	line := Line{
		Time:     time.Now(),
		Module:   module,
		Text:     text,
		Index:    index,
		Level:    level,
		Replaced: true,
	}
	f.lines[index] = line
	f.broadcast(line)

	return index
}

// hasLaterLine reports whether a line after index belongs to module.
// Callers must hold f.mu.
func (f *Feed) hasLaterLine(index int, module string) bool {
	for _, line := range f.lines[index+1:] {
		if line.Module == module {
			return true
		}
	}
	return false
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel.
func (f *Feed) Subscribe() (<-chan Line, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Line, f.opts.Buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
}

// Lines returns a snapshot of every line.
func (f *Feed) Lines() []Line {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.lines)
}

// Close closes every subscriber channel. Later lines are still recorded.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}

// broadcast sends line to every subscriber without blocking.
// Callers must hold f.mu.
func (f *Feed) broadcast(line Line) {
	for _, ch := range f.subs {
		select {
		case ch <- line:
		default:
			f.logger.Warn("dropped feed line for slow subscriber",
				slog.String("module", line.Module),
				slog.Int("index", line.Index))
		}
	}
}

// Discard is an Emitter that drops every line.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Level, string, string) int { return -1 }

func (discard) Replace(int, Level, string, string) int { return -1 }
