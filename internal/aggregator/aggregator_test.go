package aggregator

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/feed"
	"github.com/listenupapp/watchmodule/internal/watcher"
)

// recorder collects flushes.
type recorder struct {
	flushes [][]Batch
	ch      chan []Batch
	mu      sync.Mutex
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan []Batch, 16)}
}

func (r *recorder) flush(batches []Batch) {
	r.mu.Lock()
	r.flushes = append(r.flushes, batches)
	r.mu.Unlock()
	r.ch <- batches
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flushes)
}

func (r *recorder) wait(t *testing.T) []Batch {
	t.Helper()
	select {
	case batches := <-r.ch:
		return batches
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for flush")
		return nil
	}
}

func newTestAggregator(t *testing.T, window time.Duration, emitter feed.Emitter) (*Aggregator, *recorder) {
	t.Helper()
	rec := newRecorder()
	a := New(rec.flush, Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Emitter: emitter,
		Window:  window,
	})
	t.Cleanup(a.Stop)
	return a, rec
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAggregator_DebounceCoalescing(t *testing.T) {
	root := t.TempDir()
	a, rec := newTestAggregator(t, 50*time.Millisecond, nil)
	a.AddRoot(root, "ui")

	var paths []string
	for i, name := range []string{"a.ts", "b.ts", "c.ts"} {
		path := writeFile(t, filepath.Join(root, "src", name), name)
		paths = append(paths, path)
		require.NoError(t, a.OnEvent(watcher.EventAdded, path))
		// A second event for the same file within the window.
		writeFile(t, path, name+string(rune('0'+i)))
		require.NoError(t, a.OnEvent(watcher.EventChanged, path))
	}

	batches := rec.wait(t)
	require.Len(t, batches, 1)
	assert.Equal(t, "ui", batches[0].Key)
	assert.Equal(t, root, batches[0].Root)
	assert.Equal(t, paths, batches[0].Paths)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "exactly one flush")
	assert.Equal(t, 0, a.Pending())
}

func TestAggregator_FlushesEveryModuleInOnePass(t *testing.T) {
	base := t.TempDir()
	ui := filepath.Join(base, "ui")
	core := filepath.Join(base, "core")

	a, rec := newTestAggregator(t, 50*time.Millisecond, nil)
	a.AddRoot(ui, "ui")
	a.AddRoot(core, "core")

	require.NoError(t, a.OnEvent(watcher.EventAdded, writeFile(t, filepath.Join(ui, "src", "a.ts"), "a")))
	require.NoError(t, a.OnEvent(watcher.EventAdded, writeFile(t, filepath.Join(core, "src", "b.ts"), "b")))

	batches := rec.wait(t)
	require.Len(t, batches, 2)
	assert.Equal(t, "core", batches[0].Key)
	assert.Equal(t, "ui", batches[1].Key)
}

func TestAggregator_ResetDefersFlush(t *testing.T) {
	root := t.TempDir()
	a, rec := newTestAggregator(t, 100*time.Millisecond, nil)
	a.AddRoot(root, "ui")

	path := filepath.Join(root, "src", "a.ts")
	for i := range 5 {
		writeFile(t, path, string(rune('a'+i)))
		require.NoError(t, a.OnEvent(watcher.EventChanged, path))
		time.Sleep(40 * time.Millisecond)
	}
	assert.Equal(t, 0, rec.count(), "events inside the window keep deferring the flush")

	rec.wait(t)
	assert.Equal(t, 1, rec.count())
}

func TestAggregator_HashDedup(t *testing.T) {
	root := t.TempDir()
	f := feed.New(slog.New(slog.NewTextHandler(io.Discard, nil)), feed.Options{Verbose: true})
	a, rec := newTestAggregator(t, 20*time.Millisecond, f)
	a.AddRoot(root, "ui")

	path := writeFile(t, filepath.Join(root, "src", "a.ts"), "same")
	require.NoError(t, a.OnEvent(watcher.EventAdded, path))
	rec.wait(t)

	// Saved twice with identical bytes.
	writeFile(t, path, "same")
	require.NoError(t, a.OnEvent(watcher.EventChanged, path))
	writeFile(t, path, "same")
	require.NoError(t, a.OnEvent(watcher.EventChanged, path))

	assert.Equal(t, 0, a.Pending())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "identical saves schedule nothing")

	lines := f.Lines()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1].Text, "content did not change")
	assert.Equal(t, feed.LevelDebug, lines[len(lines)-1].Level)
}

func TestAggregator_RemovedForgetsHash(t *testing.T) {
	root := t.TempDir()
	a, rec := newTestAggregator(t, 20*time.Millisecond, nil)
	a.AddRoot(root, "ui")

	path := writeFile(t, filepath.Join(root, "src", "a.ts"), "x")
	require.NoError(t, a.OnEvent(watcher.EventAdded, path))
	rec.wait(t)

	require.NoError(t, os.Remove(path))
	require.NoError(t, a.OnEvent(watcher.EventRemoved, path))
	batches := rec.wait(t)
	assert.Equal(t, []string{path}, batches[0].Paths)

	_, ok := a.hashes.Get(path)
	assert.False(t, ok)

	// Recreated with the old content: a change again.
	writeFile(t, path, "x")
	require.NoError(t, a.OnEvent(watcher.EventChanged, path))
	assert.Equal(t, 1, a.Pending())
}

func TestAggregator_IgnoresDirectories(t *testing.T) {
	root := t.TempDir()
	a, _ := newTestAggregator(t, time.Hour, nil)
	a.AddRoot(root, "ui")

	require.NoError(t, a.OnEvent(watcher.EventDirAdded, filepath.Join(root, "src")))
	require.NoError(t, a.OnEvent(watcher.EventDirRemoved, "/not/watched"))
	assert.Equal(t, 0, a.Pending())
}

func TestAggregator_OwnerInvariant(t *testing.T) {
	base := t.TempDir()
	a, _ := newTestAggregator(t, time.Hour, nil)
	a.AddRoot(filepath.Join(base, "ui"), "ui")

	err := a.OnEvent(watcher.EventRemoved, filepath.Join(base, "elsewhere", "a.ts"))
	assert.ErrorIs(t, err, domainerrors.ErrInternal)

	// A prefix of the directory name is not a parent.
	_, err = a.Owner(filepath.Join(base, "ui-kit", "a.ts"))
	assert.ErrorIs(t, err, domainerrors.ErrInternal)

	a.AddRoot(filepath.Join(base, "ui", "nested"), "nested")
	err = a.OnEvent(watcher.EventRemoved, filepath.Join(base, "ui", "nested", "a.ts"))
	assert.ErrorIs(t, err, domainerrors.ErrInternal)
	assert.Contains(t, err.Error(), "several")

	assert.Equal(t, 0, a.Pending(), "unrouted events are never batched")
}

func TestAggregator_FlushIsSynchronous(t *testing.T) {
	root := t.TempDir()
	a, rec := newTestAggregator(t, time.Hour, nil)
	a.AddRoot(root, "ui")

	require.NoError(t, a.OnEvent(watcher.EventAdded, writeFile(t, filepath.Join(root, "a.ts"), "x")))
	a.Flush()
	assert.Equal(t, 1, rec.count())

	a.Flush()
	assert.Equal(t, 1, rec.count(), "nothing pending, nothing flushed")
}

func TestAggregator_StopDropsPending(t *testing.T) {
	root := t.TempDir()
	a, rec := newTestAggregator(t, 20*time.Millisecond, nil)
	a.AddRoot(root, "ui")

	require.NoError(t, a.OnEvent(watcher.EventAdded, writeFile(t, filepath.Join(root, "a.ts"), "x")))
	a.Stop()
	require.NoError(t, a.OnEvent(watcher.EventAdded, writeFile(t, filepath.Join(root, "b.ts"), "y")))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 0, a.Pending())
}

func TestAggregator_RemoveRoot(t *testing.T) {
	root := t.TempDir()
	a, _ := newTestAggregator(t, time.Hour, nil)
	a.AddRoot(root, "ui")
	require.NoError(t, a.OnEvent(watcher.EventAdded, writeFile(t, filepath.Join(root, "a.ts"), "x")))

	a.RemoveRoot(root)
	assert.Equal(t, 0, a.Pending())

	_, err := a.Owner(filepath.Join(root, "a.ts"))
	assert.Error(t, err)
}
