package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/relay"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/monitor"
)

// stubMonitor fails after failAfter when err is set, otherwise blocks until canceled.
type stubMonitor struct {
	source    trigger.Source
	failAfter time.Duration
	err       error
}

func (m stubMonitor) Source() trigger.Source {
	return m.source
}

func (m stubMonitor) Start(ctx context.Context, _ bus.Sender) error {
	if m.err != nil {
		time.Sleep(m.failAfter)
		return m.err
	}

	<-ctx.Done()

	return nil
}

func factoryOf(m monitor.Monitor) Factory {
	return func(context.Context) (monitor.Monitor, error) {
		return m, nil
	}
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu     sync.Mutex
	bodies []string
}

func (n *recordingNotifier) Notify(_ context.Context, _, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.bodies = append(n.bodies, body)
}

var errSetup = errors.New("setup failed")

// unreachableRelay is a relay channel that never completes authentication.
type unreachableRelay struct{}

func (unreachableRelay) Authenticate(ctx context.Context) (string, error) {
	<-ctx.Done()

	return "", ctx.Err()
}

func (unreachableRelay) Listen(ctx context.Context, _ func(context.Context, relay.Command)) error {
	<-ctx.Done()

	return nil
}

func (unreachableRelay) Reply(context.Context, string, string) error {
	return nil
}

// TestArm_ActiveSet checks probing, configuration errors and non-probed failures.
func TestArm_ActiveSet(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		registry := Registry{
			// Probed and fails inside the grace window: excluded.
			trigger.HeartbeatTimeout: factoryOf(stubMonitor{
				source: trigger.HeartbeatTimeout,
				err:    errSetup,
			}),
			// Not probed: included even though it fails at once.
			trigger.Network: factoryOf(stubMonitor{
				source: trigger.Network,
				err:    errSetup,
			}),
			// Probed and fails only after the window: included.
			trigger.RemoteCommand: factoryOf(stubMonitor{
				source:    trigger.RemoteCommand,
				failAfter: time.Second,
				err:       errSetup,
			}),
			// Configuration error: skipped.
			trigger.DevicePresence: func(context.Context) (monitor.Monitor, error) {
				return nil, errSetup
			},
			// PhysicalButton has no factory at all.
		}

		notifier := new(recordingNotifier)
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		sender, _ := bus.New()
		start := time.Now()

		set, err := New(registry, notifier).Arm(ctx, "all, bogus", sender)
		require.NoError(t, err)
		require.Equal(t, DefaultGraceWindow, time.Since(start))
		require.Equal(t, []trigger.Source{trigger.Network, trigger.RemoteCommand}, set.Sources())
		require.True(t, set.Contains(trigger.RemoteCommand))
		require.False(t, set.Contains(trigger.HeartbeatTimeout))
		require.Equal(t, 2, set.Len())
		require.Equal(t, []string{"Armed (network, remote)"}, notifier.bodies)
	})
}

// TestArm_NoProbeNoWait returns at once when nothing is probed.
func TestArm_NoProbeNoWait(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		registry := Registry{
			trigger.Network:        factoryOf(stubMonitor{source: trigger.Network}),
			trigger.DevicePresence: factoryOf(stubMonitor{source: trigger.DevicePresence}),
		}

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		sender, _ := bus.New()
		start := time.Now()

		set, err := New(registry, nil).Arm(ctx, "usb,net", sender)
		require.NoError(t, err)
		require.Zero(t, time.Since(start))
		require.Equal(t, "network, device", set.String())
	})
}

// TestArm_NoActiveMonitors reports an empty set.
func TestArm_NoActiveMonitors(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		registry := Registry{
			trigger.HeartbeatTimeout: factoryOf(stubMonitor{source: trigger.HeartbeatTimeout, err: errSetup}),
			trigger.RemoteCommand:    factoryOf(stubMonitor{source: trigger.RemoteCommand, err: errSetup}),
		}

		notifier := new(recordingNotifier)
		sender, _ := bus.New()

		set, err := New(registry, notifier, WithGraceWindow(time.Second)).Arm(t.Context(), "timer,bot", sender)
		require.ErrorIs(t, err, ErrNoActiveMonitors)
		require.Zero(t, set.Len())
		require.Empty(t, notifier.bodies)

		_, err = New(registry, notifier).Arm(t.Context(), "nothing", sender)
		require.ErrorIs(t, err, ErrNoActiveMonitors)
	})
}

// TestArm_CanceledDuringGrace propagates cancellation.
func TestArm_CanceledDuringGrace(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		registry := Registry{
			trigger.HeartbeatTimeout: factoryOf(stubMonitor{source: trigger.HeartbeatTimeout}),
		}

		ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()

		sender, _ := bus.New()

		_, err := New(registry, nil).Arm(ctx, "heartbeat", sender)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// TestArm_MonitorsShareBus checks that every monitor can reach the consumer.
func TestArm_MonitorsShareBus(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		firing := firingMonitor{source: trigger.Network}
		registry := Registry{
			trigger.Network:       factoryOf(firing),
			trigger.PhysicalButton: factoryOf(firingMonitor{source: trigger.PhysicalButton}),
		}

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		sender, receiver := bus.New()

		_, err := New(registry, nil).Arm(ctx, "all", sender)
		require.NoError(t, err)

		ev, err := receiver.Recv(ctx)
		require.NoError(t, err)
		require.Contains(t, []trigger.Source{trigger.Network, trigger.PhysicalButton}, ev.Source)

		_, err = receiver.Recv(ctx)
		require.ErrorIs(t, err, bus.ErrConsumed)
	})
}

// firingMonitor sends one event right away.
type firingMonitor struct {
	source trigger.Source
}

func (m firingMonitor) Source() trigger.Source {
	return m.source
}

func (m firingMonitor) Start(ctx context.Context, sender bus.Sender) error {
	sender.Send(ctx, trigger.NewEvent(m.source))
	return nil
}

// TestArm_UnreachableRelayExcluded drops relay modes whose authentication hangs.
func TestArm_UnreachableRelayExcluded(t *testing.T) {
	t.Parallel()

	require.Less(t, monitor.AuthTimeout, DefaultGraceWindow)

	synctest.Test(t, func(t *testing.T) {
		registry := Registry{
			trigger.RemoteCommand: func(context.Context) (monitor.Monitor, error) {
				return monitor.NewRemote(config.Remote{
					Address: "192.0.2.242:45380",
					Token:   "abc123",
					Command: "dms",
					Secret:  "execute",
					Timeout: 5 * time.Second,
				}, unreachableRelay{})
			},
			trigger.HeartbeatTimeout: func(context.Context) (monitor.Monitor, error) {
				return monitor.NewHeartbeat(config.Heartbeat{Timeout: time.Hour, Tick: time.Second}, unreachableRelay{})
			},
		}

		notifier := new(recordingNotifier)
		sender, _ := bus.New()

		set, err := New(registry, notifier).Arm(t.Context(), "remote,heartbeat", sender)
		require.ErrorIs(t, err, ErrNoActiveMonitors)
		require.Zero(t, set.Len())
		require.Empty(t, notifier.bodies)
	})
}
