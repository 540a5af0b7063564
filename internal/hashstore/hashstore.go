// Package hashstore remembers the content hash of every file seen by the
// watcher so that saves without content changes can be ignored.
package hashstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/listenupapp/watchmodule/internal/util"
)

// Store maps a file path to the sha256 digest of its last seen content.
// It is safe for concurrent use.
type Store struct {
	entries *util.SyncMap[string, string]
}

// New creates an empty Store.
func New() *Store {
	return &Store{entries: util.NewSyncMap[string, string]()}
}

// HashFile computes the sha256 hex digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) //#nosec G304 -- paths come from the watcher
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Update hashes path, records the digest and reports whether it differs
// from the previously recorded one. A path seen for the first time counts
// as changed.
func (s *Store) Update(path string) (bool, error) {
	digest, err := HashFile(path)
	if err != nil {
		return false, err
	}
	previous, loaded := s.entries.Swap(path, digest)
	return !loaded || previous != digest, nil
}

// Get returns the recorded digest of path.
func (s *Store) Get(path string) (string, bool) {
	return s.entries.Load(path)
}

// Delete forgets path.
func (s *Store) Delete(path string) {
	s.entries.Delete(path)
}

// Len returns the number of recorded paths.
func (s *Store) Len() int {
	return s.entries.Len()
}
