//go:build !windows

package main

import (
	"os"
	"os/exec"
	"syscall"
)

// detachServer puts the server in its own process group so a Ctrl-C in the
// CLI terminal does not reach it, and points its stdio at the null device
func detachServer(cmd *exec.Cmd, devNull *os.File) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
}
