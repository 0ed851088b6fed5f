//go:build !windows

package scheduler

import "os/exec"

func configureSysProcAttr(_ *exec.Cmd) {}
