package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

// datagramBufferSize bounds a single trigger datagram.
const datagramBufferSize = 4096

// NetworkMonitor fires when a UDP datagram equals the trigger phrase.
type NetworkMonitor struct {
	cfg config.Network
}

// NewNetwork validates cfg and builds a network monitor.
func NewNetwork(cfg config.Network) (*NetworkMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &NetworkMonitor{cfg: cfg}, nil
}

// Source implements Monitor.
func (m *NetworkMonitor) Source() trigger.Source {
	return trigger.Network
}

// Start binds the UDP port and waits for the phrase.
func (m *NetworkMonitor) Start(ctx context.Context, sender bus.Sender) error {
	ctx = logger.WithName(ctx, "monitor.network")

	address := net.JoinHostPort(m.cfg.ListenHost, strconv.Itoa(m.cfg.Port))

	var lc net.ListenConfig

	conn, err := lc.ListenPacket(ctx, "udp4", address)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", address, err)
	}

	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	logger.WarnKV(ctx, "Network trigger listening", "address", conn.LocalAddr().String())

	buf := make([]byte, datagramBufferSize)

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("read udp: %w", err)
			}

			logger.WarnKV(ctx, "Failed to read datagram", "error", err)

			continue
		}

		if !strings.EqualFold(string(buf[:n]), m.cfg.Phrase) {
			logger.DebugKV(ctx, "Ignoring datagram", "from", from.String(), "size", n)
			continue
		}

		fire(ctx, sender, trigger.Network)

		return nil
	}
}
