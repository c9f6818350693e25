package monitor

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

// enumerationErrorInterval throttles repeated enumeration failure logs.
const enumerationErrorInterval = 10 * time.Second

// DeviceMonitor fires when the configured USB device is newly seen.
type DeviceMonitor struct {
	cfg        config.Device
	target     DeviceID
	enumerator Enumerator

	// known holds every device seen so far. Only the Start goroutine touches it.
	known map[DeviceID]struct{}
	// errLog throttles enumeration error logs.
	errLog rate.Sometimes
}

// DeviceOption configures a DeviceMonitor.
type DeviceOption func(*DeviceMonitor)

// WithEnumerator replaces the sysfs enumerator.
func WithEnumerator(e Enumerator) DeviceOption {
	return func(m *DeviceMonitor) {
		m.enumerator = e
	}
}

// NewDevice validates cfg and builds a device monitor.
// Without WithEnumerator it needs Linux sysfs.
func NewDevice(cfg config.Device, opts ...DeviceOption) (*DeviceMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &DeviceMonitor{
		cfg: cfg,
		target: DeviceID{
			Vendor:  cfg.VendorID,
			Product: cfg.ProductID,
		},
		known: make(map[DeviceID]struct{}),
		errLog: rate.Sometimes{
			First:    1,
			Interval: enumerationErrorInterval,
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.enumerator == nil {
		if runtime.GOOS != "linux" {
			return nil, ErrUnsupportedPlatform
		}

		m.enumerator = SysfsEnumerator{Root: cfg.SysfsRoot}
	}

	return m, nil
}

// Source implements Monitor.
func (m *DeviceMonitor) Source() trigger.Source {
	return trigger.DevicePresence
}

// Start polls the enumerator until the target device appears.
func (m *DeviceMonitor) Start(ctx context.Context, sender bus.Sender) error {
	ctx = logger.WithName(ctx, "monitor.device")

	logger.WarnKV(ctx, "Device trigger armed", "device", m.target.String())

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if m.poll(ctx) {
			fire(ctx, sender, trigger.DevicePresence)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll enumerates once and reports whether the target was newly seen.
func (m *DeviceMonitor) poll(ctx context.Context) bool {
	devices, err := m.enumerator.Devices(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.errLog.Do(func() {
				logger.WarnKV(ctx, "Failed to enumerate devices", "error", err)
			})
		}

		return false
	}

	for _, id := range devices {
		if m.track(id) && id == m.target {
			return true
		}
	}

	return false
}

// track inserts id into the known set and reports whether it was new.
func (m *DeviceMonitor) track(id DeviceID) bool {
	if _, ok := m.known[id]; ok {
		return false
	}

	m.known[id] = struct{}{}

	return true
}
