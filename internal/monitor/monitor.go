package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/domain/relay"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

// Monitor watches one activation condition.
//
// Start performs setup and then blocks. It returns a setup error, or nil after
// firing once, or nil when ctx is canceled.
type Monitor interface {
	Source() trigger.Source
	Start(ctx context.Context, sender bus.Sender) error
}

// Channel is the authenticated remote control channel shared by the remote
// and heartbeat monitors.
type Channel interface {
	// Authenticate verifies the credentials and returns the bot name.
	Authenticate(ctx context.Context) (string, error)
	// Listen delivers commands to handle until ctx ends or the stream breaks.
	Listen(ctx context.Context, handle func(context.Context, relay.Command)) error
	// Reply sends text to chat.
	Reply(ctx context.Context, chat, text string) error
}

// ErrUnsupportedPlatform is returned when a monitor cannot run on this OS.
var ErrUnsupportedPlatform = errors.New("monitor is not supported on this platform")

// AuthTimeout bounds channel authentication during Start. It stays below the
// supervisor's grace window so an unreachable relay fails the startup probe.
const AuthTimeout = 400 * time.Millisecond

const (
	// reconnectBackoff is the first pause after a broken relay stream.
	reconnectBackoff = time.Second
	// maxReconnectBackoff caps the exponential backoff.
	maxReconnectBackoff = 30 * time.Second
)

// fire emits the event for source on sender.
func fire(ctx context.Context, sender bus.Sender, source trigger.Source) {
	logger.WarnKV(ctx, "Tripwire activated", "source", source.String())

	sender.Send(ctx, trigger.NewEvent(source))
}

// authenticate verifies ch within AuthTimeout.
func authenticate(ctx context.Context, ch Channel) (string, error) {
	authCtx, cancel := context.WithTimeout(ctx, AuthTimeout)
	defer cancel()

	return ch.Authenticate(authCtx)
}

// listen keeps a command stream open until ctx ends, reconnecting with
// exponential backoff whenever the stream breaks.
func listen(ctx context.Context, ch Channel, handle func(context.Context, relay.Command)) {
	backoff := reconnectBackoff

	for {
		startedAt := time.Now()

		err := ch.Listen(ctx, handle)
		if ctx.Err() != nil {
			return
		}

		if time.Since(startedAt) > maxReconnectBackoff {
			backoff = reconnectBackoff
		}

		logger.WarnKV(ctx, "Relay stream interrupted, reconnecting",
			"error", err,
			"backoff", backoff)

		timer := time.NewTimer(backoff)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff = min(backoff*2, maxReconnectBackoff)
	}
}
