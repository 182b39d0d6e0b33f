//go:build !unix

package process

import "os/exec"

// Setup wires context cancellation to kill the spawned process. On
// platforms without process groups only the direct child is killed.
func Setup(cmd *exec.Cmd) Cleanup {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
	return func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}
