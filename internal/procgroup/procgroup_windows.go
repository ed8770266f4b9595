// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os"
	"os/exec"
	"syscall"
)

// No-op: Windows has no POSIX process groups.
func set(cmd *exec.Cmd) {}

func signalGroup(pid int, sig syscall.Signal) error {
	return signalPID(pid, sig)
}

// SIGTERM is a no-op as Windows doesn't support graceful termination via
// signals; the SIGKILL phase does the work.
func signalPID(pid int, sig syscall.Signal) error {
	if sig != syscall.SIGKILL {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return os.ErrProcessDone
	}
	return proc.Kill()
}

func exists(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
