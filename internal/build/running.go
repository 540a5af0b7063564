package build

import (
	"context"
	"slices"
	"strings"

	"github.com/listenupapp/watchmodule/internal/util"
)

// Key identifies a command of a module. At most one RunningCommand exists
// per key.
type Key struct {
	Module  string
	Command string
}

// RunningCommand is a live command invocation.
type RunningCommand struct {
	Key
	result *Result
	err    error
	cancel context.CancelFunc
	done   chan struct{}
	RunID  string
}

// Done is closed when the command has finished.
func (rc *RunningCommand) Done() <-chan struct{} {
	return rc.done
}

// Result returns the outcome once Done is closed.
func (rc *RunningCommand) Result() (*Result, error) {
	<-rc.done
	return rc.result, rc.err
}

// registry tracks running commands by key.
type registry struct {
	commands *util.SyncMap[Key, *RunningCommand]
}

func newRegistry() *registry {
	return &registry{commands: util.NewSyncMap[Key, *RunningCommand]()}
}

// replace registers rc and returns the command it displaced, if any.
func (r *registry) replace(rc *RunningCommand) (*RunningCommand, bool) {
	return r.commands.Swap(rc.Key, rc)
}

// release unregisters rc unless a newer run took its key.
func (r *registry) release(rc *RunningCommand) {
	r.commands.DeleteIf(rc.Key, func(current *RunningCommand) bool {
		return current.RunID == rc.RunID
	})
}

// keys returns the registered keys sorted by module, then command.
func (r *registry) keys() []Key {
	snapshot := r.commands.Snapshot()
	keys := make([]Key, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := strings.Compare(a.Module, b.Module); c != 0 {
			return c
		}
		return strings.Compare(a.Command, b.Command)
	})
	return keys
}
