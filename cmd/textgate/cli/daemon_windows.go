//go:build windows

package cli

import (
	"os"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows; run in the foreground or under a
// service wrapper such as NSSM instead of --detach.
func setSysProcAttr(cmd *exec.Cmd) {}

// isProcessRunning approximates a liveness probe on Windows, where
// FindProcess always succeeds and Signal only supports Kill/Interrupt.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(os.Kill)
	if err == nil {
		return true
	}
	// "process already finished" means dead; any other error means alive
	// but unsignalable.
	return err != os.ErrProcessDone
}

// stopProcess hard-kills on Windows; there is no SIGTERM to send.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
