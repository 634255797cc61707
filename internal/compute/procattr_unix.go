//go:build unix

package compute

import (
	"os/exec"
	"syscall"
)

// isolateProcessGroup starts the child in its own process group so that a
// cancelled run also takes down anything the computation forked.
func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
