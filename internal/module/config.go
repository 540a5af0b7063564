package module

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Tier names the configuration source that supplied a resolved Config.
type Tier int

const (
	// TierDefault is the built-in default configuration.
	TierDefault Tier = iota
	// TierGlobal is the module's entry in the user's global config file.
	TierGlobal
	// TierManifest is the watch-module block of the module's own manifest.
	TierManifest
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierManifest:
		return "package.json"
	case TierGlobal:
		return "global"
	case TierDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Config is the effective configuration of a module.
type Config struct {
	Includes []string
	Excludes []string
	Commands Commands
	Source   Tier
}

// Merge merges tiers field by field; earlier tiers take precedence and
// absent fields fall through. Includes default to DefaultIncludes.
func Merge(tiers ...Settings) Config {
	var (
		includes []string
		excludes []string
		commands *Commands
	)

	for _, tier := range tiers {
		if includes == nil && tier.Includes != nil {
			includes = tier.Includes
		}
		if excludes == nil && tier.Excludes != nil {
			excludes = tier.Excludes
		}
		if commands == nil && tier.Command != nil {
			commands = tier.Command
		}
	}

	cfg := Config{
		Includes: slices.Clone(includes),
		Excludes: slices.Clone(excludes),
	}
	if cfg.Includes == nil {
		cfg.Includes = slices.Clone(DefaultIncludes)
	}
	if commands != nil {
		cfg.Commands = *commands
	}
	return cfg
}

// WatchPaths returns the absolute include paths under root that exist.
// "." or an empty include means the module root itself.
func (c Config) WatchPaths(root string) []string {
	paths := make([]string, 0, len(c.Includes))
	for _, include := range c.Includes {
		path := root
		if include != "" && include != "." {
			path = filepath.Join(root, include)
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// ExcludePaths returns the absolute exclude paths under root that exist.
func (c Config) ExcludePaths(root string) []string {
	paths := make([]string, 0, len(c.Excludes))
	for _, exclude := range c.Excludes {
		path := root
		if exclude = strings.TrimRight(exclude, "/"); exclude != "" && exclude != "." {
			path = filepath.Join(root, exclude)
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}
