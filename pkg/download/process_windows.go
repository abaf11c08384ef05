//go:build windows

package download

import (
	"errors"
	"os/exec"
	"syscall"
)

const (
	createNoWindow = 0x08000000

	errorSharingViolation syscall.Errno = 32
	errorLockViolation    syscall.Errno = 33
)

func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: createNoWindow}
}

// isHandleHeld reports whether another process still has the file open.
func isHandleHeld(err error) bool {
	return errors.Is(err, errorSharingViolation) || errors.Is(err, errorLockViolation)
}
