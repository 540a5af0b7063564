package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/watchmodule/internal/artifact"
	"github.com/listenupapp/watchmodule/internal/config"
	"github.com/listenupapp/watchmodule/internal/logger"
	"github.com/listenupapp/watchmodule/internal/module"
	"github.com/listenupapp/watchmodule/internal/session"
	"github.com/listenupapp/watchmodule/internal/watcher"
)

// WatcherHandle wraps the file watcher with shutdown capability.
type WatcherHandle struct {
	*watcher.Watcher
}

// Shutdown implements do.ShutdownerWithError.
func (h *WatcherHandle) Shutdown() error {
	return h.Watcher.Stop()
}

// ProvideWatcher provides the file system watcher.
func ProvideWatcher(i do.Injector) (*WatcherHandle, error) {
	log, err := do.Invoke[*logger.Logger](i)
	if err != nil {
		return nil, err
	}

	w, err := watcher.New(log.Logger, watcher.Options{})
	if err != nil {
		return nil, err
	}
	return &WatcherHandle{Watcher: w}, nil
}

// SessionHandle wraps the session and its event loop.
type SessionHandle struct {
	*session.Session
	log     *logger.Logger
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Shutdown implements do.ShutdownerWithError. It returns once every
// swapped module has been restored.
func (h *SessionHandle) Shutdown() error {
	results := h.Session.Shutdown()
	h.cancel()

	select {
	case <-h.stopped:
	case <-time.After(shutdownTimeout):
		h.log.Warn("event loop did not stop in time")
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", r.Name, r.Err))
		}
	}
	return errors.Join(errs...)
}

// ProvideSession provides the watch session and starts its event loop.
// Modules are added by the caller.
func ProvideSession(i do.Injector) (*SessionHandle, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	log, err := do.Invoke[*logger.Logger](i)
	if err != nil {
		return nil, err
	}
	feedHandle, err := do.Invoke[*FeedHandle](i)
	if err != nil {
		return nil, err
	}
	watcherHandle, err := do.Invoke[*WatcherHandle](i)
	if err != nil {
		return nil, err
	}
	registry, err := do.Invoke[*module.Registry](i)
	if err != nil {
		return nil, err
	}
	resolver, err := do.Invoke[*module.Resolver](i)
	if err != nil {
		return nil, err
	}
	swapper, err := do.Invoke[*artifact.Swapper](i)
	if err != nil {
		return nil, err
	}
	restorer, err := do.Invoke[*artifact.Restorer](i)
	if err != nil {
		return nil, err
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	s := session.New(session.Options{
		Logger:      log.Logger,
		Emitter:     feedHandle.Feed,
		Source:      watcherHandle.Watcher,
		Registry:    registry,
		Resolver:    resolver,
		Swapper:     swapper,
		Restorer:    restorer,
		BaseDir:     wd,
		Debounce:    cfg.Watch.Debounce,
		OutputLimit: cfg.Build.OutputLimit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := s.Run(ctx); err != nil {
			log.Error("event loop stopped", "error", err)
		}
	}()

	log.Debug("session started")

	return &SessionHandle{
		Session: s,
		log:     log,
		cancel:  cancel,
		stopped: stopped,
	}, nil
}
