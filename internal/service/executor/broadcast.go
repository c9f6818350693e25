package executor

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/oshokin/tripwire/internal/config"
)

// UDPBroadcaster sends the trigger phrase so other armed machines fire too.
type UDPBroadcaster struct {
	address string
	phrase  string
}

// NewUDPBroadcaster builds a broadcaster from the network section.
func NewUDPBroadcaster(cfg config.Network) *UDPBroadcaster {
	return &UDPBroadcaster{
		address: net.JoinHostPort(cfg.BroadcastAddress, strconv.Itoa(cfg.Port)),
		phrase:  cfg.Phrase,
	}
}

// Broadcast implements Broadcaster.
func (b *UDPBroadcaster) Broadcast(ctx context.Context) error {
	target, err := net.ResolveUDPAddr("udp4", b.address)
	if err != nil {
		return fmt.Errorf("resolve broadcast address: %w", err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}

	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return fmt.Errorf("open broadcast socket: %w", err)
	}

	defer conn.Close()

	if _, err = conn.WriteTo([]byte(b.phrase), target); err != nil {
		return fmt.Errorf("send broadcast to %s: %w", b.address, err)
	}

	return nil
}
