//go:build !unix

package compute

import "os/exec"

func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}
