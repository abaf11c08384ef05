//go:build !windows

package download

import (
	"errors"
	"os/exec"
	"syscall"
)

func hideWindow(*exec.Cmd) {}

// isHandleHeld reports whether another process still has the file open.
func isHandleHeld(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY)
}
