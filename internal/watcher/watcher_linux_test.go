//go:build linux

package watcher

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLinuxBackend(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	backend, err := newLinuxBackend(slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
	require.NoError(t, err)
	require.NotNil(t, backend)

	assert.NotNil(t, backend.Events())
	assert.NotNil(t, backend.Errors())
	assert.NoError(t, backend.Stop())
}

func TestLinuxBackend_WatchIsIdempotent(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	backend, err := newLinuxBackend(slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
	require.NoError(t, err)
	defer backend.Stop() //nolint:errcheck // Test cleanup

	dir := t.TempDir()
	require.NoError(t, backend.addWatch(dir))
	require.NoError(t, backend.addWatch(dir))
	assert.Len(t, backend.watches, 1)

	backend.removeWatches(dir)
	assert.Empty(t, backend.watches)
	assert.Empty(t, backend.wdPaths)
}

func TestFallbackStubOnLinux(t *testing.T) {
	_, err := newFallbackBackend(nil, Options{})
	assert.Error(t, err)
}
