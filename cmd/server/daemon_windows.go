//go:build windows

package main

import (
	"os"
	"os/exec"
	"syscall"
)

// spawnDetached starts path with args in a new process group and returns
// its PID
func spawnDetached(path string, args []string) (int, error) {
	cmd := exec.Command(path, args...)
	if cwd, err := os.Getwd(); err == nil {
		cmd.Dir = cwd
	}
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}
