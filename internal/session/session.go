// Package session owns one watch-module run: the watched modules and the
// pipeline from watcher events to swapped builds, and the restore of every
// swapped module when the run ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/listenupapp/watchmodule/internal/aggregator"
	"github.com/listenupapp/watchmodule/internal/artifact"
	"github.com/listenupapp/watchmodule/internal/build"
	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/feed"
	"github.com/listenupapp/watchmodule/internal/hashstore"
	"github.com/listenupapp/watchmodule/internal/module"
	"github.com/listenupapp/watchmodule/internal/watcher"
)

// watcherErrorInterval throttles repeated watcher error lines.
const watcherErrorInterval = 5 * time.Second

// Source delivers file events. *watcher.Watcher implements it.
type Source interface {
	Watch(path string) error
	Ignore(paths ...string)
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan watcher.Event
	Errors() <-chan error
}

// Options configures a Session.
type Options struct {
	Logger   *slog.Logger
	Emitter  feed.Emitter
	Source   Source
	Registry *module.Registry
	Resolver *module.Resolver
	Swapper  *artifact.Swapper
	Restorer *artifact.Restorer
	// BaseDir resolves relative module paths (default: working directory).
	BaseDir string
	// Debounce is the aggregation window (default: aggregator.DefaultWindow).
	Debounce    time.Duration
	OutputLimit int
	// OnPass, when set, is called with every scheduled pass.
	OnPass func(*build.Pass)
}

// Module is a watched module.
type Module struct {
	Name       string
	Dir        string
	Config     module.Config
	WatchPaths []string
}

// Session runs the watch, build and swap pipeline for a set of modules.
type Session struct {
	opts       Options
	logger     *slog.Logger
	emitter    feed.Emitter
	aggregator *aggregator.Aggregator
	scheduler  *build.Scheduler
	errLog     *rate.Sometimes
	modules    map[string]*Module // name -> module
	shutdown   sync.Once
	results    []artifact.RestoreResult
	mu         sync.Mutex
}

// New creates a Session. Modules are added with AddModule.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = feed.Discard
	}
	if opts.BaseDir == "" {
		opts.BaseDir, _ = os.Getwd()
	}

	s := &Session{
		opts:    opts,
		logger:  opts.Logger,
		emitter: opts.Emitter,
		errLog:  &rate.Sometimes{First: 1, Interval: watcherErrorInterval},
		modules: make(map[string]*Module),
	}

	var swapper build.Swapper
	if opts.Swapper != nil {
		swapper = opts.Swapper
	}
	s.scheduler = build.NewScheduler(build.Options{
		Logger:      opts.Logger,
		Emitter:     opts.Emitter,
		Swapper:     swapper,
		OutputLimit: opts.OutputLimit,
	})
	s.aggregator = aggregator.New(s.onFlush, aggregator.Options{
		Logger:  opts.Logger,
		Emitter: opts.Emitter,
		Hashes:  hashstore.New(),
		Window:  opts.Debounce,
	})

	return s
}

// AddModule starts watching the module at path. Every existing file under
// its include paths is reported as added, so the module builds once right
// away. Failures are reported to the feed and returned as WatchPath errors;
// modules already watched are not affected.
func (s *Session) AddModule(path string) (*Module, error) {
	m, err := s.addModule(path)
	if err != nil {
		level := feed.LevelError
		if errors.Is(err, errNothingToWatch) {
			level = feed.LevelInfo
		}
		name := feed.System
		if m != nil {
			name = m.Name
		}
		s.emitter.Emit(level, name, err.Error())
		s.logger.Warn("module not added", slog.String("path", path), slog.String("error", err.Error()))
		return nil, err
	}
	return m, nil
}

var errNothingToWatch = errors.New("nothing to watch")

func (s *Session) addModule(path string) (*Module, error) {
	dir := path
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.opts.BaseDir, dir)
	}
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil {
		return nil, domainerrors.WatchPathf("%s does not exist", path)
	}
	if !info.IsDir() {
		return nil, domainerrors.WatchPathf("%s is not a directory", path)
	}

	desc, err := s.opts.Registry.Get(dir)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeWatchPath, "%s is not a valid module", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.modules[desc.Name]; ok {
		return nil, domainerrors.WatchPathf("%s is already watched from %s", desc.Name, existing.Dir)
	}
	for _, existing := range s.modules {
		if overlaps(existing.Dir, dir) {
			s.opts.Registry.Forget(dir)
			return nil, domainerrors.WatchPathf("%s overlaps watched module %s", path, existing.Name)
		}
	}

	cfg := s.opts.Resolver.ResolveDescriptor(desc)
	m := &Module{
		Name:       desc.Name,
		Dir:        dir,
		Config:     cfg,
		WatchPaths: cfg.WatchPaths(dir),
	}
	if len(m.WatchPaths) == 0 {
		return m, domainerrors.Wrapf(errNothingToWatch, domainerrors.CodeWatchPath,
			"no include path of %s exists (%s)", desc.Name, strings.Join(cfg.Includes, ", "))
	}

	// The root must be known before the first initial add arrives.
	s.aggregator.AddRoot(dir, m.Name)
	if excludes := cfg.ExcludePaths(dir); len(excludes) > 0 {
		s.opts.Source.Ignore(excludes...)
	}

	var watched []string
	for _, p := range m.WatchPaths {
		if err := s.opts.Source.Watch(p); err != nil {
			s.emitter.Emit(feed.LevelWarn, m.Name, fmt.Sprintf("cannot watch %s: %v", p, err))
			continue
		}
		watched = append(watched, p)
	}
	if len(watched) == 0 {
		s.aggregator.RemoveRoot(dir)
		return m, domainerrors.WatchPathf("no path of %s could be watched", m.Name)
	}
	m.WatchPaths = watched
	s.modules[m.Name] = m

	s.emitter.Emit(feed.LevelInfo, m.Name, "watching "+relativeList(dir, watched))
	s.logger.Info("module added",
		slog.String("module", m.Name),
		slog.String("dir", dir),
		slog.String("config", cfg.Source.String()))

	return m, nil
}

// overlaps reports whether one directory contains the other.
func overlaps(a, b string) bool {
	sep := string(filepath.Separator)
	return a == b || strings.HasPrefix(a, b+sep) || strings.HasPrefix(b, a+sep)
}

func relativeList(root string, paths []string) string {
	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		if r, err := filepath.Rel(root, p); err == nil {
			p = r
		}
		rel = append(rel, p)
	}
	return strings.Join(rel, ", ")
}

// Modules returns the watched modules ordered by name.
func (s *Session) Modules() []Module {
	s.mu.Lock()
	defer s.mu.Unlock()

	modules := make([]Module, 0, len(s.modules))
	for _, name := range slices.Sorted(maps.Keys(s.modules)) {
		modules = append(modules, *s.modules[name])
	}
	return modules
}

// onFlush schedules one build pass per batch.
func (s *Session) onFlush(batches []aggregator.Batch) {
	for _, batch := range batches {
		s.mu.Lock()
		m, ok := s.modules[batch.Key]
		s.mu.Unlock()
		if !ok {
			s.logger.Error("batch for unknown module", slog.String("module", batch.Key))
			continue
		}

		pass := s.scheduler.Schedule(build.Job{
			Module: m.Name,
			Dir:    m.Dir,
			Config: m.Config,
			Paths:  batch.Paths,
		})
		if s.opts.OnPass != nil {
			s.opts.OnPass(pass)
		}
	}
}

// Run feeds watcher events into the pipeline until ctx is done or the
// source stops.
func (s *Session) Run(ctx context.Context) error {
	go func() {
		if err := s.opts.Source.Start(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("watcher stopped", slog.String("error", err.Error()))
			s.emitter.Emit(feed.LevelError, feed.System, fmt.Sprintf("watcher stopped: %v", err))
		}
	}()

	events := s.opts.Source.Events()
	errs := s.opts.Source.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.errLog.Do(func() {
				s.logger.Warn("watcher error", slog.String("error", err.Error()))
				s.emitter.Emit(feed.LevelWarn, feed.System, fmt.Sprintf("watcher error: %v", err))
			})
		}
	}
}

func (s *Session) handleEvent(event watcher.Event) {
	if err := s.aggregator.OnEvent(event.Type, event.Path); err != nil {
		s.logger.Error("event not routed",
			slog.String("path", event.Path),
			slog.String("type", event.Type.String()),
			slog.String("error", err.Error()))
		s.emitter.Emit(feed.LevelError, feed.System, err.Error())
	}
}

// Shutdown stops watching, cancels running builds, waits for swaps in
// progress and restores every module's original dependency directory.
// Later calls return the results of the first.
func (s *Session) Shutdown() []artifact.RestoreResult {
	s.shutdown.Do(func() {
		if err := s.opts.Source.Stop(); err != nil {
			s.logger.Warn("failed to stop watcher", slog.String("error", err.Error()))
		}
		s.aggregator.Stop()
		s.scheduler.Close()

		if s.opts.Restorer == nil {
			return
		}

		names := make([]string, 0)
		for _, m := range s.Modules() {
			names = append(names, m.Name)
		}
		s.results = s.opts.Restorer.RestoreAll(names)
		s.reportRestores(s.results)
	})
	return s.results
}

func (s *Session) reportRestores(results []artifact.RestoreResult) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.emitter.Emit(feed.LevelError, r.Name,
				fmt.Sprintf("restore failed, backup kept at %s: %v", artifact.BackupPath(r.Target), r.Err))
			s.logger.Error("restore failed", slog.String("module", r.Name), slog.String("error", r.Err.Error()))
		case r.Restored:
			s.emitter.Emit(feed.LevelInfo, r.Name, "original module restored")
		default:
			s.emitter.Emit(feed.LevelDebug, r.Name, "nothing to restore")
		}
	}
}
