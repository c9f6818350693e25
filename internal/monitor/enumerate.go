package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DeviceID is the compound vendor and product key of a USB device.
type DeviceID struct {
	Vendor  uint16
	Product uint16
}

// String renders the ID as vvvv:pppp in hex.
func (id DeviceID) String() string {
	return fmt.Sprintf("%04x:%04x", id.Vendor, id.Product)
}

// Enumerator lists the devices attached right now.
type Enumerator interface {
	Devices(ctx context.Context) ([]DeviceID, error)
}

// SysfsEnumerator reads USB descriptors from the Linux sysfs tree.
type SysfsEnumerator struct {
	// Root is the directory holding one entry per device, usually /sys/bus/usb/devices.
	Root string
}

// Devices implements Enumerator. Entries without descriptors, such as
// interfaces, are skipped.
func (e SysfsEnumerator) Devices(ctx context.Context) ([]DeviceID, error) {
	entries, err := os.ReadDir(e.Root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Root, err)
	}

	devices := make([]DeviceID, 0, len(entries))

	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(e.Root, entry.Name())

		vendor, err := readHexID(filepath.Join(dir, "idVendor"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		product, err := readHexID(filepath.Join(dir, "idProduct"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		devices = append(devices, DeviceID{Vendor: vendor, Product: product})
	}

	return devices, nil
}

// readHexID parses a sysfs hex attribute such as "090c\n".
func readHexID(path string) (uint16, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, err
	}

	value, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	return uint16(value), nil
}
