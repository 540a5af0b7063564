//go:build unix

package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
)

func testRunOptions(dir string) runOptions {
	return runOptions{dir: dir, outputLimit: DefaultOutputLimit, waitDelay: time.Second}
}

func TestRunCommand_Success(t *testing.T) {
	dir := t.TempDir()

	result, err := runCommand(context.Background(), "echo out; echo err >&2; pwd > where", testRunOptions(dir))
	require.NoError(t, err)

	assert.Equal(t, "out\n", string(result.Stdout))
	assert.Equal(t, "err\n", string(result.Stderr))
	assert.Equal(t, 0, result.ExitCode)

	where, err := os.ReadFile(filepath.Join(dir, "where"))
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, []string{dir, resolved}, string(where[:len(where)-1]), "runs in the module directory")
}

func TestRunCommand_Failure(t *testing.T) {
	result, err := runCommand(context.Background(), "echo nope >&2; exit 3", testRunOptions(t.TempDir()))

	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrCommandFailure)
	assert.Contains(t, err.Error(), "exited with status 3")
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "nope\n", string(result.Stderr))

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Same(t, result, domainErr.Details)
}

func TestRunCommand_MissingDirectory(t *testing.T) {
	_, err := runCommand(context.Background(), "true", testRunOptions(filepath.Join(t.TempDir(), "missing")))

	assert.ErrorIs(t, err, domainerrors.ErrCommandFailure)
	assert.Contains(t, err.Error(), "could not run")
}

func TestRunCommand_OutputLimit(t *testing.T) {
	opts := testRunOptions(t.TempDir())
	opts.outputLimit = 10

	result, err := runCommand(context.Background(), "printf '%0100d' 0", opts)
	require.NoError(t, err)

	assert.Len(t, result.Stdout, 10)
	assert.True(t, result.Truncated)
}

func TestRunCommand_CancelKillsProcessGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		// The grandchild keeps stdout open; only a group signal ends it.
		_, err := runCommand(ctx, "sleep 30 & wait", testRunOptions(t.TempDir()))
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domainerrors.ErrCommandCancelled)
		assert.False(t, domainerrors.Is(err, domainerrors.ErrCommandFailure))
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled command did not stop")
	}
}

func TestRunCommand_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runCommand(ctx, "true", testRunOptions(t.TempDir()))
	assert.ErrorIs(t, err, domainerrors.ErrCommandCancelled)
}
