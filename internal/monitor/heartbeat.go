package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/relay"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

const (
	// AliveCommand resets the heartbeat timer.
	AliveCommand = "alive"
	// StatusCommand reports the remaining time without resetting it.
	StatusCommand = "status"

	// expiryNotifyTimeout bounds the farewell message on expiry.
	expiryNotifyTimeout = 3 * time.Second
)

// warnThresholds are the remaining times that get logged when crossed.
//
//nolint:gochecknoglobals // Read-only table.
var warnThresholds = []time.Duration{60 * time.Second, 30 * time.Second, 10 * time.Second}

// HeartbeatMonitor fires when no heartbeat arrived within the timeout.
type HeartbeatMonitor struct {
	cfg     config.Heartbeat
	channel Channel

	mu        sync.Mutex
	lastReset time.Time
	lastChat  string
}

// NewHeartbeat validates cfg and builds a heartbeat monitor on channel.
// A zero timeout is rejected.
func NewHeartbeat(cfg config.Heartbeat, channel Channel) (*HeartbeatMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &HeartbeatMonitor{
		cfg:     cfg,
		channel: channel,
	}, nil
}

// Source implements Monitor.
func (m *HeartbeatMonitor) Source() trigger.Source {
	return trigger.HeartbeatTimeout
}

// Reset restarts the countdown and returns the full remaining time.
func (m *HeartbeatMonitor) Reset() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastReset = time.Now()

	return m.remainingLocked()
}

// Remaining returns the time left before expiry. It never changes the state.
func (m *HeartbeatMonitor) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.remainingLocked()
}

// Start authenticates, arms the countdown and serves /alive and /status.
func (m *HeartbeatMonitor) Start(ctx context.Context, sender bus.Sender) error {
	ctx = logger.WithName(ctx, "monitor.heartbeat")

	bot, err := authenticate(ctx, m.channel)
	if err != nil {
		return fmt.Errorf("authenticate heartbeat channel: %w", err)
	}

	m.Reset()

	logger.WarnKV(ctx, "Heartbeat timer started",
		"bot", bot,
		"timeout", m.cfg.Timeout,
		"commands", []string{"/" + AliveCommand, "/" + StatusCommand})

	var wg sync.WaitGroup
	defer wg.Wait()

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()

	wg.Go(func() {
		listen(listenCtx, m.channel, m.handle)
	})

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	previous := m.Remaining()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		remaining := m.Remaining()

		for _, threshold := range warnThresholds {
			if previous > threshold && remaining <= threshold && remaining > 0 {
				logger.WarnKV(ctx, "Heartbeat expiry approaching", "remaining", formatRemaining(remaining))
			}
		}

		previous = remaining

		if remaining <= 0 {
			stopListening()
			m.expire(ctx, sender)

			return nil
		}
	}
}

// handle serves one heartbeat command.
func (m *HeartbeatMonitor) handle(ctx context.Context, cmd relay.Command) {
	var text string

	switch cmd.Name {
	case AliveCommand:
		m.noteChat(cmd.Chat)

		remaining := m.Reset()
		text = fmt.Sprintf("✅ Heartbeat received - timer reset!\n⏱️ Time until trigger: %s",
			formatRemaining(remaining))

		logger.InfoKV(ctx, "Heartbeat received", "chat", cmd.Chat, "remaining", formatRemaining(remaining))
	case StatusCommand:
		m.noteChat(cmd.Chat)

		remaining := m.Remaining()
		text = fmt.Sprintf("⏱️ Time until trigger: %s\n💡 Send /%s to reset timer",
			formatRemaining(remaining), AliveCommand)

		logger.InfoKV(ctx, "Status check", "chat", cmd.Chat, "remaining", formatRemaining(remaining))
	default:
		return
	}

	if err := m.channel.Reply(ctx, cmd.Chat, text); err != nil {
		logger.WarnKV(ctx, "Failed to reply", "chat", cmd.Chat, "error", err)
	}
}

// expire notifies the last chat and emits the event.
func (m *HeartbeatMonitor) expire(ctx context.Context, sender bus.Sender) {
	logger.ErrorKV(ctx, "Heartbeat timeout exceeded", "timeout", m.cfg.Timeout)

	if chat := m.takeChat(); chat != "" {
		notifyCtx, cancel := context.WithTimeout(ctx, expiryNotifyTimeout)

		text := fmt.Sprintf("🚨☠️ TRIPWIRE ACTIVATED! ☠️🚨\n\n"+
			"⚠️ Heartbeat timeout exceeded: %s\n"+
			"💀 System shutdown initiated\n\n"+
			"This is an automated security response.", formatRemaining(m.cfg.Timeout))

		if err := m.channel.Reply(notifyCtx, chat, text); err != nil {
			logger.WarnKV(ctx, "Failed to send expiry notification", "chat", chat, "error", err)
		}

		cancel()
	}

	fire(ctx, sender, trigger.HeartbeatTimeout)
}

func (m *HeartbeatMonitor) noteChat(chat string) {
	m.mu.Lock()
	m.lastChat = chat
	m.mu.Unlock()
}

func (m *HeartbeatMonitor) takeChat() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat := m.lastChat
	m.lastChat = ""

	return chat
}

func (m *HeartbeatMonitor) remainingLocked() time.Duration {
	return max(m.cfg.Timeout-time.Since(m.lastReset), 0)
}

// formatRemaining renders d as "Xh Ym Zs", truncated to whole seconds.
func formatRemaining(d time.Duration) string {
	seconds := int64(max(d, 0) / time.Second)

	return fmt.Sprintf("%dh %dm %ds", seconds/3600, (seconds%3600)/60, seconds%60)
}
