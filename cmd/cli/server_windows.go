//go:build windows

package main

import (
	"os"
	"os/exec"
	"syscall"
)

// detachServer starts the server in a new process group without a console
// attached to the CLI, with stdio on the null device
func detachServer(cmd *exec.Cmd, devNull *os.File) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
}
