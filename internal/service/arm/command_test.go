package arm

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	triggerrepo "github.com/oshokin/tripwire/internal/repository/trigger"
	"github.com/oshokin/tripwire/internal/service/supervisor"
)

// countingTools counts protective tool calls.
type countingTools struct {
	dismounts atomic.Int32
	powerOffs atomic.Int32
}

func (c *countingTools) Dismount(context.Context) error {
	c.dismounts.Add(1)
	return nil
}

func (c *countingTools) PowerOff(context.Context) error {
	c.powerOffs.Add(1)
	return nil
}

// quiet implements every desktop and network collaborator as a no-op.
type quiet struct{}

func (quiet) Broadcast(context.Context) error { return nil }

func (quiet) Notify(context.Context, string, string) {}

func (quiet) ShowFullScreenAlert(context.Context) {}

// writeConfig saves a test configuration in a temp dir and returns its path.
func writeConfig(t *testing.T) (string, config.Config) {
	t.Helper()

	dir := t.TempDir()

	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.StateFile = filepath.Join(dir, "last-trigger.json")
	cfg.LockFile = filepath.Join(dir, "tripwire.lock")
	cfg.Button.Host = "127.0.0.1"
	cfg.Remote.Address = "127.0.0.1:1"
	cfg.Actions.Delay = 0
	cfg.Actions.Hold = 10 * time.Millisecond

	path := filepath.Join(dir, "tripwire.yaml")
	require.NoError(t, config.Save(path, &cfg))

	return path, cfg
}

// TestRun_ManualTrigger runs the actions once and records a manual trigger.
func TestRun_ManualTrigger(t *testing.T) {
	t.Parallel()

	path, cfg := writeConfig(t)
	tools := new(countingTools)

	err := Run(t.Context(), &Options{
		ConfigPath:  path,
		Trigger:     true,
		Tools:       tools,
		Broadcaster: quiet{},
		Notifier:    quiet{},
		Alerter:     quiet{},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, tools.dismounts.Load())
	require.EqualValues(t, 1, tools.powerOffs.Load())

	record, err := triggerrepo.NewFileRepository(cfg.StateFile).Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, trigger.Manual, record.Source)
	require.Empty(t, record.ActiveModes)
}

// TestRun_NoActiveMonitors fails when nothing could be armed.
func TestRun_NoActiveMonitors(t *testing.T) {
	t.Parallel()

	path, _ := writeConfig(t)
	tools := new(countingTools)

	err := Run(t.Context(), &Options{
		ConfigPath:  path,
		Modes:       "bogus",
		Tools:       tools,
		Broadcaster: quiet{},
		Notifier:    quiet{},
		Alerter:     quiet{},
	})
	require.ErrorIs(t, err, supervisor.ErrNoActiveMonitors)
	require.Zero(t, tools.powerOffs.Load())
}

// TestRun_PlaceholderTokenDisablesRemote leaves only the modes that can run.
func TestRun_PlaceholderTokenDisablesRemote(t *testing.T) {
	t.Parallel()

	path, _ := writeConfig(t)

	err := Run(t.Context(), &Options{
		ConfigPath:  path,
		Modes:       "remote,heartbeat",
		Tools:       new(countingTools),
		Broadcaster: quiet{},
		Notifier:    quiet{},
		Alerter:     quiet{},
	})
	require.ErrorIs(t, err, supervisor.ErrNoActiveMonitors)
}

// TestRun_CanceledDisarms returns cleanly when the context ends before a trigger.
func TestRun_CanceledDisarms(t *testing.T) {
	t.Parallel()

	path, _ := writeConfig(t)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	reserved, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	cfg.Network.ListenHost = "127.0.0.1"
	cfg.Network.Port = reserved.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, reserved.Close())
	require.NoError(t, config.Save(path, cfg))

	tools := new(countingTools)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	err = Run(ctx, &Options{
		ConfigPath:  path,
		Modes:       "net",
		Tools:       tools,
		Broadcaster: quiet{},
		Notifier:    quiet{},
		Alerter:     quiet{},
	})
	require.NoError(t, err)
	require.Zero(t, tools.powerOffs.Load())
}

// TestLast prints the persisted record or a placeholder line.
func TestLast(t *testing.T) {
	t.Parallel()

	path, cfg := writeConfig(t)

	var out bytes.Buffer

	require.NoError(t, Last(t.Context(), path, &out))
	require.Equal(t, "No trigger recorded.\n", out.String())

	record := trigger.NewRecord(trigger.NewEvent(trigger.Network),
		&trigger.Actor{Hostname: "vault", Username: "o.shokin"},
		[]trigger.Source{trigger.HeartbeatTimeout, trigger.Network})
	require.NoError(t, triggerrepo.NewFileRepository(cfg.StateFile).Save(t.Context(), record))

	out.Reset()
	require.NoError(t, Last(t.Context(), path, &out))
	require.Contains(t, out.String(), "source:       network")
	require.Contains(t, out.String(), "host:         vault")
	require.Contains(t, out.String(), "active modes: heartbeat, network")
}
