package executor

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

// DefaultDelay separates the broadcast from the dismount.
const DefaultDelay = 3 * time.Second

// Broadcaster announces the trigger to other machines.
type Broadcaster interface {
	Broadcast(ctx context.Context) error
}

// Tools are the protective system tools.
type Tools interface {
	Dismount(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// Recorder persists the trigger before any action runs.
type Recorder interface {
	Record(ctx context.Context, ev trigger.Event) error
}

// Executor runs the action sequence.
type Executor struct {
	broadcaster Broadcaster
	tools       Tools
	recorder    Recorder
	delay       time.Duration

	once sync.Once
	done chan struct{}
}

// Option configures an Executor.
type Option func(*Executor)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.delay = d
		}
	}
}

// WithRecorder persists the trigger before the sequence starts.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// New creates an executor.
func New(broadcaster Broadcaster, tools Tools, opts ...Option) *Executor {
	e := &Executor{
		broadcaster: broadcaster,
		tools:       tools,
		delay:       DefaultDelay,
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute starts the sequence for ev and returns a channel closed after the
// power-off step. The sequence ignores cancellation of ctx. Later calls do
// nothing and return the same channel.
func (e *Executor) Execute(ctx context.Context, ev trigger.Event) <-chan struct{} {
	ctx = logger.WithName(context.WithoutCancel(ctx), "executor")

	started := false

	e.once.Do(func() {
		started = true

		logger.ErrorKV(ctx, "Tripwire triggered, running protective actions",
			"source", ev.Source.String(),
			"observed_at", ev.ObservedAt)

		e.record(ctx, ev)
		e.step(ctx, "broadcast", e.broadcaster.Broadcast)

		go e.run(ctx)
	})

	if !started {
		logger.WarnKV(ctx, "Protective actions already running, ignoring trigger", "source", ev.Source.String())
	}

	return e.done
}

// run waits for the delay and then runs the destructive steps.
func (e *Executor) run(ctx context.Context) {
	defer close(e.done)

	if e.delay > 0 {
		logger.WarnKV(ctx, "Dismounting after delay", "delay", e.delay)

		time.Sleep(e.delay)
	}

	e.step(ctx, "dismount", e.tools.Dismount)

	logger.Warn(ctx, "Powering off")
	logger.Sync()

	e.step(ctx, "power off", e.tools.PowerOff)
}

func (e *Executor) record(ctx context.Context, ev trigger.Event) {
	if e.recorder == nil {
		return
	}

	if err := e.recorder.Record(ctx, ev); err != nil {
		logger.ErrorKV(ctx, "Failed to record trigger", "error", err)
	}
}

// step runs one action and logs its outcome.
func (e *Executor) step(ctx context.Context, name string, action func(context.Context) error) {
	if err := action(ctx); err != nil {
		logger.ErrorKV(ctx, "Protective action failed", "action", name, "error", err)
		return
	}

	logger.WarnKV(ctx, "Protective action completed", "action", name)
}
