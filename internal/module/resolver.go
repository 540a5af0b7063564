package module

import (
	"fmt"
	"sync"

	"github.com/listenupapp/watchmodule/internal/feed"
)

// Resolver computes and memoizes the effective Config of modules.
type Resolver struct {
	registry *Registry
	global   map[string]Settings
	emitter  feed.Emitter
	cache    map[string]Config
	mu       sync.Mutex
}

// NewResolver creates a resolver over the global config entries.
func NewResolver(registry *Registry, global map[string]Settings, emitter feed.Emitter) *Resolver {
	if emitter == nil {
		emitter = feed.Discard
	}
	return &Resolver{
		registry: registry,
		global:   global,
		emitter:  emitter,
		cache:    make(map[string]Config),
	}
}

// Resolve returns the Config of the module at path. The first call for a
// module name does the I/O and the merge; later calls return the cache.
func (r *Resolver) Resolve(path string) (Config, error) {
	desc, err := r.registry.Get(path)
	if err != nil {
		return Config{}, err
	}
	return r.ResolveDescriptor(desc), nil
}

// ResolveDescriptor is Resolve for an already loaded descriptor.
func (r *Resolver) ResolveDescriptor(desc *Descriptor) Config {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg, ok := r.cache[desc.Name]; ok {
		return cfg
	}

	var (
		own    Settings
		hasOwn bool
	)
	if m := desc.Manifest(); m != nil && m.WatchModule != nil {
		own, hasOwn = *m.WatchModule, true
	}
	global, hasGlobal := r.global[desc.Name]

	cfg := Merge(own, global, DefaultSettings(desc.Dir))
	switch {
	case hasOwn:
		cfg.Source = TierManifest
	case hasGlobal:
		cfg.Source = TierGlobal
	default:
		cfg.Source = TierDefault
	}

	r.cache[desc.Name] = cfg
	r.emitter.Emit(feed.LevelInfo, desc.Name, fmt.Sprintf("using %s config", cfg.Source))

	return cfg
}
