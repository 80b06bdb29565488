// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package toolexec

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSysProcAttr places the child in its own process group so a timeout
// kill reaches every descendant, not just the direct child.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree terminates the process group rooted at pid. A negative pid
// targets the group created by Setpgid at start. Falls back to killing the
// direct child when the group signal fails (the child may already be gone).
func (r *Runner) killTree(pid int, cmd *exec.Cmd) {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		r.logger().Debug("process group kill failed, killing process directly", "pid", pid, "error", err)
		_ = cmd.Process.Kill()
	}
}
