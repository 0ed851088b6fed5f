//go:build windows

package scheduler

import (
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// configureSysProcAttr keeps scheduler utilities from flashing a console window.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}
