package module

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// CommandsFor returns the commands to run for a batch of changed paths
// under root. A single command always applies. Pattern commands apply when
// at least one path matches their pattern; duplicates are dropped.
func (c Config) CommandsFor(root string, paths []string) []string {
	if c.Commands.IsZero() {
		return nil
	}
	if !c.Commands.IsPatterns() {
		return []string{c.Commands.Single()}
	}

	var (
		commands []string
		seen     = make(map[string]bool)
	)
	for _, pattern := range c.Commands.Patterns() {
		command, _ := c.Commands.Command(pattern)
		if command == "" || seen[command] {
			continue
		}
		for _, path := range paths {
			if MatchPattern(pattern, root, path) {
				seen[command] = true
				commands = append(commands, command)
				break
			}
		}
	}
	return commands
}

// MatchPattern reports whether path matches a glob pattern.
// Patterns without a slash match the base name; others match the path
// relative to root, or the absolute path.
func MatchPattern(pattern, root, path string) bool {
	if !strings.Contains(pattern, "/") {
		ok, err := doublestar.Match(pattern, filepath.Base(path))
		return err == nil && ok
	}

	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		if ok, err := doublestar.Match(pattern, filepath.ToSlash(rel)); err == nil && ok {
			return true
		}
	}

	ok, err := doublestar.Match(pattern, filepath.ToSlash(path))
	return err == nil && ok
}

// ValidPattern reports whether pattern is a well-formed glob.
func ValidPattern(pattern string) bool {
	return pattern != "" && doublestar.ValidatePattern(pattern)
}
