package watcher

import "context"

// WatcherBackend defines the platform-specific file watching implementation
type WatcherBackend interface {
	// Watch adds a path to be monitored. Directories are watched
	// recursively and everything already inside them is reported as added.
	Watch(path string) error

	// Ignore adds paths that are never reported, together with
	// everything below them.
	Ignore(paths ...string)

	// Start begins watching for events. This method should block until
	// the context is cancelled.
	Start(ctx context.Context) error

	// Stop stops the watcher and releases all resources. Calling it more
	// than once is harmless.
	Stop() error

	// Events returns the channel for receiving file system events
	Events() <-chan Event

	// Errors returns the channel for receiving errors
	Errors() <-chan error
}
