// SPDX-License-Identifier: MPL-2.0

//go:build windows

package toolexec

import (
	"os/exec"
	"strconv"
)

// setSysProcAttr is a no-op on Windows. Tree termination goes through
// taskkill, which walks the child tree by itself.
func setSysProcAttr(cmd *exec.Cmd) {}

// killTree terminates the process tree rooted at pid via taskkill /T /F,
// falling back to killing the direct child when taskkill itself fails.
func (r *Runner) killTree(pid int, cmd *exec.Cmd) {
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	if err := kill.Run(); err != nil {
		r.logger().Debug("taskkill failed, killing process directly", "pid", pid, "error", err)
		_ = cmd.Process.Kill()
	}
}
