//go:build windows

package mpv

import (
	"os/exec"
	"syscall"
)

// detachProcess puts mpv in its own process group so it does not receive the
// console's Ctrl+C and does not share console handles with us.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
