//go:build !windows

package mpv

import "os/exec"

func detachProcess(cmd *exec.Cmd) {
	// Nothing to do on Unix.
}
