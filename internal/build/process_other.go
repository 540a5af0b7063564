//go:build !unix

package build

import "os/exec"

// configureProcess keeps the exec default of killing the process on
// cancellation; there are no process groups to signal.
func configureProcess(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}
