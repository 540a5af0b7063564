// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Defaults.
const (
	DefaultDebounce           = 200 * time.Millisecond
	DefaultOutputLimit        = 500 * 1024
	DefaultRestoreConcurrency = 4
	DefaultLogLevel           = "warn"
	GlobalConfigDir           = "watch-module"
	GlobalConfigFile          = "watch-module.json"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Watch  WatchConfig
	Build  BuildConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
	// Verbose records debug lines in the feed and forces the debug level.
	Verbose bool
}

// WatchConfig holds watching configuration.
type WatchConfig struct {
	// GlobalConfigPath is the JSON file keyed by module name.
	GlobalConfigPath string
	// ConsumerDir is the project whose node_modules receives the builds
	// (default: working directory).
	ConsumerDir string
	// Debounce is the quiet window before a batch of changes is built
	// (default: 200ms).
	Debounce time.Duration
}

// BuildConfig holds build and restore configuration.
type BuildConfig struct {
	// OutputLimit caps captured output per command stream, in bytes
	// (default: 500 KiB).
	OutputLimit int
	// RestoreConcurrency bounds parallel restores at shutdown (default: 4).
	RestoreConcurrency int
}

// Flags are the raw command-line values. Empty strings mean "not set".
type Flags struct {
	Env                string
	LogLevel           string
	EnvFile            string
	Debounce           string
	GlobalConfig       string
	OutputLimit        string
	ConsumerDir        string
	RestoreConcurrency string
	Verbose            bool
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(flags Flags) (*Config, error) {
	envFile := flags.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// A missing .env file is normal.
	if err := loadEnvFile(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("invalid env file %s: %w", envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flags.Env, "WATCH_MODULE_ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:   getConfigValue(flags.LogLevel, "WATCH_MODULE_LOG_LEVEL", DefaultLogLevel),
			Verbose: flags.Verbose || getBoolConfigValue("", "WATCH_MODULE_VERBOSE", false),
		},
	}
	if cfg.Logger.Verbose {
		cfg.Logger.Level = "debug"
	}

	debounceStr := getConfigValue(flags.Debounce, "WATCH_MODULE_DEBOUNCE", DefaultDebounce.String())
	debounce, err := time.ParseDuration(debounceStr)
	if err != nil {
		return nil, fmt.Errorf("invalid debounce %q: %w", debounceStr, err)
	}
	cfg.Watch.Debounce = debounce

	limitStr := getConfigValue(flags.OutputLimit, "WATCH_MODULE_OUTPUT_LIMIT", "")
	cfg.Build.OutputLimit, err = parseByteSize(limitStr, DefaultOutputLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid output limit %q: %w", limitStr, err)
	}

	cfg.Build.RestoreConcurrency, err = getIntConfigValue(flags.RestoreConcurrency,
		"WATCH_MODULE_RESTORE_CONCURRENCY", DefaultRestoreConcurrency)
	if err != nil {
		return nil, fmt.Errorf("invalid restore concurrency: %w", err)
	}

	if err := cfg.expandGlobalConfigPath(getConfigValue(flags.GlobalConfig, "WATCH_MODULE_CONFIG", "")); err != nil {
		return nil, fmt.Errorf("invalid global config path: %w", err)
	}

	if err := cfg.expandConsumerDir(getConfigValue(flags.ConsumerDir, "WATCH_MODULE_CONSUMER_DIR", "")); err != nil {
		return nil, fmt.Errorf("invalid consumer directory: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Watch.Debounce)
	}
	if c.Build.OutputLimit <= 0 {
		return fmt.Errorf("output limit must be positive, got %d", c.Build.OutputLimit)
	}
	if c.Build.RestoreConcurrency < 1 {
		return fmt.Errorf("restore concurrency must be at least 1, got %d", c.Build.RestoreConcurrency)
	}
	if c.Watch.GlobalConfigPath == "" {
		return errors.New("global config path cannot be empty after expansion")
	}
	if c.Watch.ConsumerDir == "" {
		return errors.New("consumer directory cannot be empty after expansion")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandGlobalConfigPath resolves the global config file, defaulting to
// $XDG_CONFIG_HOME/watch-module/watch-module.json or
// ~/.config/watch-module/watch-module.json.
func (c *Config) expandGlobalConfigPath(path string) error {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}
	defaultPath := filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)

	expanded, err := expandPath(path, defaultPath)
	if err != nil {
		return err
	}
	c.Watch.GlobalConfigPath = expanded
	return nil
}

// expandConsumerDir resolves the consumer project, defaulting to the
// working directory.
func (c *Config) expandConsumerDir(path string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	expanded, err := expandPath(path, wd)
	if err != nil {
		return err
	}
	c.Watch.ConsumerDir = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) (int, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", strValue)
	}
	return result, nil
}

// parseByteSize parses sizes like "512000", "500KiB" or "1MB".
func parseByteSize(value string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, err
	}
	if size > uint64(1<<31-1) {
		return 0, fmt.Errorf("%s is too large", humanize.IBytes(size))
	}
	return int(size), nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- env file path comes from the user
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
