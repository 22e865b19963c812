//go:build windows

package sidecar

import "os/exec"

// setupProcessGroup is a no-op on Windows; descendants are not tracked
// and the host relies on WaitDelay to unblock the pipe readers.
func setupProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the direct child.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
