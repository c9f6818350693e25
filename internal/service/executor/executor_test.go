package executor

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

// step is one recorded action with its offset from the test start.
type step struct {
	name string
	at   time.Duration
}

// recorder implements every collaborator and logs the calls in order.
type recorder struct {
	start time.Time

	broadcastErr error
	dismountErr  error

	mu    sync.Mutex
	steps []step
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps = append(r.steps, step{name: name, at: time.Since(r.start)})
}

func (r *recorder) Record(context.Context, trigger.Event) error {
	r.add("record")
	return errors.New("disk full")
}

func (r *recorder) Broadcast(context.Context) error {
	r.add("broadcast")
	return r.broadcastErr
}

func (r *recorder) Dismount(context.Context) error {
	r.add("dismount")
	return r.dismountErr
}

func (r *recorder) PowerOff(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.add("power off")

	return nil
}

func (r *recorder) recorded() []step {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]step, len(r.steps))
	copy(out, r.steps)

	return out
}

// TestExecute_OrderAndDelay runs every step in order with the dismount delayed.
func TestExecute_OrderAndDelay(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{start: time.Now()}
		e := New(rec, rec, WithRecorder(rec))

		<-e.Execute(t.Context(), trigger.NewEvent(trigger.Network))

		require.Equal(t, []step{
			{name: "record", at: 0},
			{name: "broadcast", at: 0},
			{name: "dismount", at: DefaultDelay},
			{name: "power off", at: DefaultDelay},
		}, rec.recorded())
	})
}

// TestExecute_FailureTolerance keeps going after broadcast and dismount errors.
func TestExecute_FailureTolerance(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{
			start:        time.Now(),
			broadcastErr: errors.New("network unreachable"),
			dismountErr:  errors.New("veracrypt not found"),
		}
		e := New(rec, rec, WithDelay(time.Second))

		<-e.Execute(t.Context(), trigger.NewEvent(trigger.HeartbeatTimeout))

		require.Equal(t, []step{
			{name: "broadcast", at: 0},
			{name: "dismount", at: time.Second},
			{name: "power off", at: time.Second},
		}, rec.recorded())
	})
}

// TestExecute_ExactlyOnce ignores cancellation and repeated calls.
func TestExecute_ExactlyOnce(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{start: time.Now()}
		e := New(rec, rec)

		ctx, cancel := context.WithCancel(t.Context())

		first := e.Execute(ctx, trigger.NewEvent(trigger.RemoteCommand))
		cancel()

		second := e.Execute(t.Context(), trigger.NewEvent(trigger.Network))
		require.Equal(t, first, second)

		<-first

		require.Len(t, rec.recorded(), 3)
	})
}

// TestUDPBroadcaster_Broadcast delivers the phrase to a loopback listener.
func TestUDPBroadcaster_Broadcast(t *testing.T) {
	t.Parallel()

	listener, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	defer listener.Close()

	b := NewUDPBroadcaster(config.Network{
		Port:             listener.LocalAddr().(*net.UDPAddr).Port,
		Phrase:           "trigger_dms",
		BroadcastAddress: "127.0.0.1",
	})

	require.NoError(t, b.Broadcast(t.Context()))
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(5*time.Second)))

	buf := make([]byte, 64)

	n, _, err := listener.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, "trigger_dms", string(buf[:n]))
}

// syncWriter counts flushes of the log output.
type syncWriter struct {
	mu    sync.Mutex
	syncs int
}

func (w *syncWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (w *syncWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.syncs++

	return nil
}

func (w *syncWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.syncs
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(context.Context) error {
	return nil
}

// flushCheckingTools records whether the log was flushed before power-off.
type flushCheckingTools struct {
	out             *syncWriter
	syncsAtPowerOff int
}

func (*flushCheckingTools) Dismount(context.Context) error {
	return nil
}

func (f *flushCheckingTools) PowerOff(context.Context) error {
	f.syncsAtPowerOff = f.out.count()
	return nil
}

// TestExecute_FlushesLogBeforePowerOff replaces the global logger, so it does not run in parallel.
func TestExecute_FlushesLogBeforePowerOff(t *testing.T) {
	previous := logger.Logger()
	t.Cleanup(func() {
		logger.SetLogger(previous)
	})

	out := new(syncWriter)
	logger.SetLogger(logger.NewWithWriter(out, zapcore.DebugLevel))

	tools := &flushCheckingTools{out: out}
	done := New(noopBroadcaster{}, tools, WithDelay(0)).Execute(context.Background(), trigger.NewEvent(trigger.Network))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sequence did not finish")
	}

	require.Positive(t, tools.syncsAtPowerOff)
}
