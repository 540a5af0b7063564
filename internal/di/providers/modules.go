package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/listenupapp/watchmodule/internal/artifact"
	"github.com/listenupapp/watchmodule/internal/config"
	"github.com/listenupapp/watchmodule/internal/logger"
	"github.com/listenupapp/watchmodule/internal/module"
)

// ProvideRegistry provides the module registry. Relative module paths are
// resolved against the working directory.
func ProvideRegistry(_ do.Injector) (*module.Registry, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return module.NewRegistry(wd), nil
}

// ProvideResolver provides the module config resolver.
func ProvideResolver(i do.Injector) (*module.Resolver, error) {
	registry, err := do.Invoke[*module.Registry](i)
	if err != nil {
		return nil, err
	}
	global, err := do.Invoke[GlobalConfig](i)
	if err != nil {
		return nil, err
	}
	feedHandle, err := do.Invoke[*FeedHandle](i)
	if err != nil {
		return nil, err
	}

	return module.NewResolver(registry, global, feedHandle.Feed), nil
}

// ProvideSwapper provides the artifact swapper for the consumer project.
func ProvideSwapper(i do.Injector) (*artifact.Swapper, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	log, err := do.Invoke[*logger.Logger](i)
	if err != nil {
		return nil, err
	}

	return artifact.NewSwapper(cfg.Watch.ConsumerDir, log.Logger), nil
}

// ProvideRestorer provides the backup restorer.
func ProvideRestorer(i do.Injector) (*artifact.Restorer, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	swapper, err := do.Invoke[*artifact.Swapper](i)
	if err != nil {
		return nil, err
	}

	return artifact.NewRestorer(swapper, cfg.Build.RestoreConcurrency), nil
}
