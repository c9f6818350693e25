//go:build linux || darwin

package power

import "golang.org/x/sys/unix"

// syncFilesystems commits buffered writes before a forced power-off.
func syncFilesystems() {
	unix.Sync()
}
