//go:build windows

package executor

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// enableBroadcast sets SO_BROADCAST on the socket.
func enableBroadcast(_, _ string, c syscall.RawConn) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}

	return sockErr
}
