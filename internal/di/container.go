// Package di provides dependency injection configuration for watch-module.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/watchmodule/internal/artifact"
	"github.com/listenupapp/watchmodule/internal/config"
	"github.com/listenupapp/watchmodule/internal/di/providers"
	"github.com/listenupapp/watchmodule/internal/logger"
	"github.com/listenupapp/watchmodule/internal/module"
	"github.com/listenupapp/watchmodule/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(flags config.Flags) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, flags)

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideGlobalConfig)
	do.Provide(injector, providers.ProvideFeed)

	// Modules
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideResolver)

	// Artifacts
	do.Provide(injector, providers.ProvideSwapper)
	do.Provide(injector, providers.ProvideRestorer)

	// Workers
	do.Provide(injector, providers.ProvideWatcher)
	do.Provide(injector, providers.ProvideSession)

	return injector
}

// Bootstrap initializes every service and starts the session. The first
// failure is returned unwrapped, so callers can match domain error codes.
func Bootstrap(injector *do.RootScope) error {
	steps := []func() error{
		invoke[*config.Config](injector),
		invoke[*logger.Logger](injector),
		invoke[*validation.Validator](injector),
		invoke[providers.GlobalConfig](injector),
		invoke[*providers.FeedHandle](injector),
		invoke[*module.Registry](injector),
		invoke[*module.Resolver](injector),
		invoke[*artifact.Swapper](injector),
		invoke[*artifact.Restorer](injector),
		invoke[*providers.WatcherHandle](injector),
		invoke[*providers.SessionHandle](injector),
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](injector *do.RootScope) func() error {
	return func() error {
		_, err := do.Invoke[T](injector)
		return err
	}
}
