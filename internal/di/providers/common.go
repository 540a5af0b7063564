// Package providers contains dependency injection providers for watch-module.
package providers

import "time"

const (
	// shutdownTimeout bounds the wait for the event loop after the
	// session has been shut down.
	shutdownTimeout = 5 * time.Second
)
