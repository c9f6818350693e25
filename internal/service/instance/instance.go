package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/mitchellh/go-ps"
)

// ErrAlreadyArmed is returned when another process holds the lock.
var ErrAlreadyArmed = errors.New("another tripwire is already armed")

// pidSuffix names the sidecar file holding the owner PID.
const pidSuffix = ".pid"

// Lock is a held single-instance lock.
type Lock struct {
	file    *flock.Flock
	pidPath string
}

// Holder describes the process that owns the lock.
type Holder struct {
	PID        int
	Executable string
}

// String renders the holder for error messages.
func (h Holder) String() string {
	if h.Executable == "" {
		return "pid " + strconv.Itoa(h.PID)
	}

	return fmt.Sprintf("%s (pid %d)", h.Executable, h.PID)
}

// Acquire takes the lock at path without blocking.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file := flock.New(path)

	locked, err := file.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	pidPath := path + pidSuffix

	if !locked {
		if holder, ok := findHolder(pidPath); ok {
			return nil, fmt.Errorf("%w: held by %s", ErrAlreadyArmed, holder)
		}

		return nil, ErrAlreadyArmed
	}

	err = os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		_ = file.Unlock()

		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &Lock{
		file:    file,
		pidPath: pidPath,
	}, nil
}

// Release drops the lock and removes the PID file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	_ = os.Remove(l.pidPath)

	return l.file.Unlock()
}

// findHolder reads the owner PID and looks the process up.
func findHolder(pidPath string) (Holder, bool) {
	raw, err := os.ReadFile(filepath.Clean(pidPath))
	if err != nil {
		return Holder{}, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return Holder{}, false
	}

	holder := Holder{PID: pid}

	process, err := ps.FindProcess(pid)
	if err == nil && process != nil {
		holder.Executable = process.Executable()
	}

	return holder, true
}
