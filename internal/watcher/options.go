package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Options configures the file watcher behavior.
type Options struct {
	// IgnorePatterns are matched against the base name of every path.
	IgnorePatterns []string
	// IgnorePaths are absolute paths never watched, together with
	// everything below them.
	IgnorePaths  []string
	SettleDelay  time.Duration
	IgnoreHidden bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 100 * time.Millisecond
	}

	// Set default ignore patterns if none specified (nil, not just empty).
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.swp",
			"*~",
			"Thumbs.db",
		}
		// If patterns were explicitly set (even to empty slice), respect
		// the caller's IgnoreHidden choice.
		o.IgnoreHidden = true
	}

	paths := make([]string, len(o.IgnorePaths))
	for i, p := range o.IgnorePaths {
		paths[i] = filepath.Clean(p)
	}
	o.IgnorePaths = paths
}

// shouldIgnore checks if a path matches ignore patterns.
// Hidden directories are pruned while walking, so checking the base name
// is enough to keep everything below them out.
func (o *Options) shouldIgnore(path string) bool {
	path = filepath.Clean(path)
	base := filepath.Base(path)

	if o.IgnoreHidden && strings.HasPrefix(base, ".") && base != "." && base != ".." {
		return true
	}

	if underAny(path, o.IgnorePaths) {
		return true
	}

	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}

	return false
}

// underAny reports whether path is one of prefixes or lies below one.
func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
