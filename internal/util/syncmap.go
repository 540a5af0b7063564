// Package util provides small shared helpers.
package util

import (
	"maps"
	"sync"
)

// SyncMap is a type-safe concurrent map guarded by a RWMutex.
// It is preferred over sync.Map where reads dominate and the key and
// value types are known at compile time.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

// NewSyncMap creates a new type-safe concurrent map.
func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

// Load returns the value stored for key. The ok result indicates whether
// a value was found.
func (sm *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	value, ok = sm.m[key]
	return
}

// Store sets the value for a key.
func (sm *SyncMap[K, V]) Store(key K, value V) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.m[key] = value
}

// Swap stores value for key and returns the previous value, if any.
func (sm *SyncMap[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	previous, loaded = sm.m[key]
	sm.m[key] = value
	return
}

// LoadOrStore returns the existing value for the key if present.
// Otherwise, it stores and returns the given value.
// The loaded result is true if the value was loaded, false if stored.
func (sm *SyncMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	sm.mu.RLock()
	actual, loaded = sm.m[key]
	sm.mu.RUnlock()
	if loaded {
		return actual, true
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Another goroutine may have stored a value between RUnlock and Lock.
	actual, loaded = sm.m[key]
	if loaded {
		return actual, true
	}

	sm.m[key] = value
	return value, false
}

// Delete deletes the value for a key.
func (sm *SyncMap[K, V]) Delete(key K) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.m, key)
}

// DeleteIf deletes the value for key only when match reports true for it.
// It returns whether the entry was deleted.
func (sm *SyncMap[K, V]) DeleteIf(key K, match func(V) bool) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	value, ok := sm.m[key]
	if !ok || !match(value) {
		return false
	}
	delete(sm.m, key)
	return true
}

// Len returns the number of items in the map.
func (sm *SyncMap[K, V]) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.m)
}

// Snapshot returns a copy of the map contents.
func (sm *SyncMap[K, V]) Snapshot() map[K]V {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return maps.Clone(sm.m)
}
