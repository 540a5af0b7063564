package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/listenupapp/watchmodule/internal/config"
	"github.com/listenupapp/watchmodule/internal/logger"
	"github.com/listenupapp/watchmodule/internal/module"
	"github.com/listenupapp/watchmodule/internal/validation"
)

// GlobalConfig is the parsed global config file, keyed by module name.
type GlobalConfig map[string]module.Settings

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	flags, err := do.Invoke[config.Flags](i)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(flags)
}

// ProvideLogger provides the diagnostics logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.Logger.Verbose,
		Environment: cfg.App.Environment,
		NoColor:     os.Getenv("NO_COLOR") != "",
	})

	log.Debug("starting watch-module",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"consumer_dir", cfg.Watch.ConsumerDir,
		"global_config", cfg.Watch.GlobalConfigPath,
		"debounce", cfg.Watch.Debounce,
	)

	return log, nil
}

// ProvideValidator provides the configuration validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideGlobalConfig loads the global config file, creating it when
// missing. Validation failures are fatal.
func ProvideGlobalConfig(i do.Injector) (GlobalConfig, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	v, err := do.Invoke[*validation.Validator](i)
	if err != nil {
		return nil, err
	}

	global, err := config.LoadGlobal(cfg.Watch.GlobalConfigPath, v)
	if err != nil {
		return nil, err
	}
	return GlobalConfig(global), nil
}
