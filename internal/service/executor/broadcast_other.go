//go:build !unix && !windows

package executor

import "syscall"

func enableBroadcast(_, _ string, _ syscall.RawConn) error {
	return nil
}
