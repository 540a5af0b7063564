package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/watchmodule/internal/config"
	"github.com/listenupapp/watchmodule/internal/feed"
	"github.com/listenupapp/watchmodule/internal/logger"
)

// FeedHandle wraps the feed with shutdown capability.
type FeedHandle struct {
	*feed.Feed
}

// Shutdown implements do.ShutdownerWithError. Subscribers see their
// channel closed after the last line.
func (h *FeedHandle) Shutdown() error {
	h.Feed.Close()
	return nil
}

// ProvideFeed provides the user-facing line feed.
func ProvideFeed(i do.Injector) (*FeedHandle, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	log, err := do.Invoke[*logger.Logger](i)
	if err != nil {
		return nil, err
	}

	return &FeedHandle{
		Feed: feed.New(log.Logger, feed.Options{Verbose: cfg.Logger.Verbose}),
	}, nil
}
