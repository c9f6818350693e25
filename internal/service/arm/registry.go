package arm

import (
	"context"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/monitor"
	"github.com/oshokin/tripwire/internal/service/common"
	"github.com/oshokin/tripwire/internal/service/supervisor"
	"github.com/oshokin/tripwire/internal/version"
)

// newRegistry maps every source to its monitor factory. The relay client is
// shared by the remote and heartbeat monitors and created on first use; only
// the remote monitor needs the kill command settings.
// The returned func closes the client.
func newRegistry(cfg *config.Config) (supervisor.Registry, func()) {
	var client *common.Client

	channel := func(ctx context.Context) (monitor.Channel, error) {
		if client != nil {
			return client, nil
		}

		if err := cfg.Remote.ValidateChannel(); err != nil {
			return nil, err
		}

		c, err := common.Dial(ctx, cfg.Remote.Address, cfg.Remote.Token,
			common.WithCallTimeout(cfg.Remote.Timeout),
			common.WithUserAgent(version.UserAgent("tripwire")))
		if err != nil {
			return nil, err
		}

		client = c

		return client, nil
	}

	registry := supervisor.Registry{
		trigger.Network: func(context.Context) (monitor.Monitor, error) {
			return monitor.NewNetwork(cfg.Network)
		},
		trigger.DevicePresence: func(context.Context) (monitor.Monitor, error) {
			return monitor.NewDevice(cfg.Device)
		},
		trigger.PhysicalButton: func(context.Context) (monitor.Monitor, error) {
			return monitor.NewButton(cfg.Button)
		},
		trigger.RemoteCommand: func(ctx context.Context) (monitor.Monitor, error) {
			ch, err := channel(ctx)
			if err != nil {
				return nil, err
			}

			return monitor.NewRemote(cfg.Remote, ch)
		},
		trigger.HeartbeatTimeout: func(ctx context.Context) (monitor.Monitor, error) {
			ch, err := channel(ctx)
			if err != nil {
				return nil, err
			}

			return monitor.NewHeartbeat(cfg.Heartbeat, ch)
		},
	}

	return registry, func() {
		_ = client.Close()
	}
}
