package monitor

import (
	"context"
	"fmt"
	"slices"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/relay"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

// Replies sent by the remote monitor.
const (
	remoteActivatedReply = "🚨☠️ Tripwire ACTIVATED! 🚨☠️"
	remoteInvalidReply   = "❌ Invalid command parameter"
)

// RemoteMonitor fires on the kill command carrying the right secret.
type RemoteMonitor struct {
	cfg     config.Remote
	channel Channel
}

// NewRemote validates cfg and builds a remote monitor on channel.
func NewRemote(cfg config.Remote, channel Channel) (*RemoteMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &RemoteMonitor{
		cfg:     cfg,
		channel: channel,
	}, nil
}

// Source implements Monitor.
func (m *RemoteMonitor) Source() trigger.Source {
	return trigger.RemoteCommand
}

// Start authenticates and then serves commands until the secret arrives.
func (m *RemoteMonitor) Start(ctx context.Context, sender bus.Sender) error {
	ctx = logger.WithName(ctx, "monitor.remote")

	bot, err := authenticate(ctx, m.channel)
	if err != nil {
		return fmt.Errorf("authenticate remote channel: %w", err)
	}

	logger.WarnKV(ctx, "Remote trigger active", "bot", bot, "command", "/"+m.cfg.Command)

	listenCtx, stop := context.WithCancel(ctx)
	defer stop()

	fired := false

	listen(listenCtx, m.channel, func(cmdCtx context.Context, cmd relay.Command) {
		if fired || cmd.Name != m.cfg.Command {
			return
		}

		if !m.allowed(cmd.Chat) {
			logger.WarnKV(cmdCtx, "Ignoring command from unknown chat", "chat", cmd.Chat)
			return
		}

		if cmd.Args != m.cfg.Secret {
			logger.WarnKV(cmdCtx, "Rejected command with invalid parameter", "chat", cmd.Chat)
			m.reply(cmdCtx, cmd.Chat, remoteInvalidReply)

			return
		}

		fired = true

		fire(ctx, sender, trigger.RemoteCommand)
		m.reply(ctx, cmd.Chat, remoteActivatedReply)
		stop()
	})

	return nil
}

// allowed reports whether chat may issue commands.
func (m *RemoteMonitor) allowed(chat string) bool {
	return len(m.cfg.AllowedChats) == 0 || slices.Contains(m.cfg.AllowedChats, chat)
}

func (m *RemoteMonitor) reply(ctx context.Context, chat, text string) {
	if err := m.channel.Reply(ctx, chat, text); err != nil {
		logger.WarnKV(ctx, "Failed to reply", "chat", chat, "error", err)
	}
}
