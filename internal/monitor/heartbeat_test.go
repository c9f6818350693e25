package monitor

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/relay"
	"github.com/oshokin/tripwire/internal/domain/trigger"
)

func testHeartbeatConfig() config.Heartbeat {
	return config.Heartbeat{
		Timeout: 30 * time.Second,
		Tick:    time.Second,
	}
}

// TestHeartbeat_ExpiresWithoutReset fires exactly one timeout after arming.
func TestHeartbeat_ExpiresWithoutReset(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ch := newFakeChannel()

		m, err := NewHeartbeat(testHeartbeatConfig(), ch)
		require.NoError(t, err)
		require.Equal(t, trigger.HeartbeatTimeout, m.Source())

		sender, receiver := bus.New()
		start := time.Now()
		done := make(chan error, 1)

		go func() {
			done <- m.Start(t.Context(), sender)
		}()

		ev, err := receiver.Recv(t.Context())
		require.NoError(t, err)
		require.Equal(t, trigger.HeartbeatTimeout, ev.Source)
		require.Equal(t, 30*time.Second, ev.ObservedAt.Sub(start))
		require.NoError(t, <-done)

		// No chat ever talked to the bot, so nobody is notified.
		require.Empty(t, ch.sentReplies())
	})
}

// TestHeartbeat_ResetPostponesExpiry checks that a reset at 29s moves expiry to 59s.
func TestHeartbeat_ResetPostponesExpiry(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ch := newFakeChannel()

		m, err := NewHeartbeat(testHeartbeatConfig(), ch)
		require.NoError(t, err)

		sender, receiver := bus.New()
		start := time.Now()
		done := make(chan error, 1)

		go func() {
			done <- m.Start(t.Context(), sender)
		}()

		time.Sleep(29 * time.Second)

		ch.commands <- relay.Command{Chat: "ops", Name: AliveCommand}

		synctest.Wait()
		require.Equal(t, 30*time.Second, m.Remaining())

		replies := ch.sentReplies()
		require.Len(t, replies, 1)
		require.Equal(t, "ops", replies[0].Chat)
		require.Contains(t, replies[0].Text, "timer reset")
		require.Contains(t, replies[0].Text, "0h 0m 30s")

		ev, err := receiver.Recv(t.Context())
		require.NoError(t, err)
		require.Equal(t, 59*time.Second, ev.ObservedAt.Sub(start))
		require.NoError(t, <-done)

		replies = ch.sentReplies()
		require.Len(t, replies, 2)
		require.Equal(t, "ops", replies[1].Chat)
		require.Contains(t, replies[1].Text, "TRIPWIRE ACTIVATED")
	})
}

// TestHeartbeat_StatusDoesNotReset ensures /status only reads the state.
func TestHeartbeat_StatusDoesNotReset(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ch := newFakeChannel()

		m, err := NewHeartbeat(testHeartbeatConfig(), ch)
		require.NoError(t, err)

		sender, receiver := bus.New()
		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)

		go func() {
			done <- m.Start(ctx, sender)
		}()

		time.Sleep(10 * time.Second)

		ch.commands <- relay.Command{Chat: "ops", Name: StatusCommand}
		ch.commands <- relay.Command{Chat: "ops", Name: "unrelated"}

		synctest.Wait()
		require.Equal(t, 20*time.Second, m.Remaining())

		replies := ch.sentReplies()
		require.Len(t, replies, 1)
		require.Contains(t, replies[0].Text, "0h 0m 20s")

		cancel()
		require.NoError(t, <-done)

		recvCtx, recvCancel := context.WithTimeout(t.Context(), time.Millisecond)
		defer recvCancel()

		_, err = receiver.Recv(recvCtx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// TestHeartbeat_AuthenticationFailure reports setup errors from Start.
func TestHeartbeat_AuthenticationFailure(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.authErr = errors.New("unauthenticated")

	m, err := NewHeartbeat(testHeartbeatConfig(), ch)
	require.NoError(t, err)

	sender, _ := bus.New()
	require.ErrorContains(t, m.Start(t.Context(), sender), "unauthenticated")
}

// TestNewHeartbeat_RejectsZeroTimeout validates the section.
func TestNewHeartbeat_RejectsZeroTimeout(t *testing.T) {
	t.Parallel()

	_, err := NewHeartbeat(config.Heartbeat{Timeout: 0, Tick: time.Second}, newFakeChannel())
	require.Error(t, err)
}

// TestFormatRemaining covers rendering and truncation.
func TestFormatRemaining(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 3725 * time.Second, want: "1h 2m 5s"},
		{in: 1500 * time.Millisecond, want: "0h 0m 1s"},
		{in: -time.Second, want: "0h 0m 0s"},
		{in: 24 * time.Hour, want: "24h 0m 0s"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, formatRemaining(tt.in))
	}
}

// TestListen_ReconnectsWithBackoff verifies the backoff between broken streams.
func TestListen_ReconnectsWithBackoff(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ch := &flakyChannel{fail: 2}
		ctx, cancel := context.WithCancel(t.Context())
		start := time.Now()
		done := make(chan struct{})

		go func() {
			defer close(done)
			listen(ctx, ch, func(context.Context, relay.Command) {})
		}()

		time.Sleep(time.Minute)
		synctest.Wait()

		calls := ch.callTimes()
		require.Len(t, calls, 3)
		require.Equal(t, time.Duration(0), calls[0].Sub(start))
		require.Equal(t, time.Second, calls[1].Sub(start))
		require.Equal(t, 3*time.Second, calls[2].Sub(start))

		cancel()
		<-done
	})
}
