package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
	"github.com/oshokin/tripwire/internal/monitor"
)

// DefaultGraceWindow is how long probed monitors get to fail their setup.
const DefaultGraceWindow = 500 * time.Millisecond

// ErrNoActiveMonitors is returned when no selected monitor could be armed.
var ErrNoActiveMonitors = errors.New("no active monitors")

// Factory builds the monitor for one source. An error means the source is
// misconfigured and is skipped.
type Factory func(ctx context.Context) (monitor.Monitor, error)

// Registry maps sources to their factories.
type Registry map[trigger.Source]Factory

// Notifier announces that the tripwire is armed.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// ActiveSet is the ordered, read-only set of armed sources.
type ActiveSet struct {
	sources []trigger.Source
}

// Sources returns a copy of the armed sources in arming order.
func (s ActiveSet) Sources() []trigger.Source {
	return slices.Clone(s.sources)
}

// Contains reports whether source is armed.
func (s ActiveSet) Contains(source trigger.Source) bool {
	return slices.Contains(s.sources, source)
}

// Len returns the number of armed sources.
func (s ActiveSet) Len() int {
	return len(s.sources)
}

// String renders the set as a comma-separated list of mode names.
func (s ActiveSet) String() string {
	return trigger.JoinSources(s.sources)
}

// Supervisor starts monitors and computes the active set.
type Supervisor struct {
	registry Registry
	notifier Notifier
	grace    time.Duration
	probed   []trigger.Source
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithGraceWindow overrides DefaultGraceWindow.
func WithGraceWindow(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// New creates a supervisor over registry.
func New(registry Registry, notifier Notifier, opts ...Option) *Supervisor {
	s := &Supervisor{
		registry: registry,
		notifier: notifier,
		grace:    DefaultGraceWindow,
		probed:   []trigger.Source{trigger.RemoteCommand, trigger.HeartbeatTimeout},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// running tracks a started monitor.
type running struct {
	source trigger.Source
	done   chan struct{}
	err    error
}

// Arm starts the monitors selected by modes and returns the active set.
// Monitors keep running until ctx is canceled; they are never stopped
// when a sibling fires.
func (s *Supervisor) Arm(ctx context.Context, modes string, sender bus.Sender) (ActiveSet, error) {
	ctx = logger.WithName(ctx, "supervisor")

	selected, unknown := trigger.ParseModes(modes)
	for _, name := range unknown {
		logger.WarnKV(ctx, "Ignoring unknown mode", "mode", name)
	}

	started := make([]*running, 0, len(selected))

	for _, source := range selected {
		r, err := s.start(ctx, source, sender)
		if err != nil {
			logger.WarnKV(ctx, "Mode disabled", "mode", source.String(), "error", err)
			continue
		}

		started = append(started, r)
	}

	if err := s.waitGrace(ctx, started); err != nil {
		return ActiveSet{}, err
	}

	active := make([]trigger.Source, 0, len(started))

	for _, r := range started {
		if slices.Contains(s.probed, r.source) && r.stopped() {
			logger.WarnKV(ctx, "Mode failed its startup probe", "mode", r.source.String(), "error", r.err)
			continue
		}

		active = append(active, r.source)
	}

	if len(active) == 0 {
		return ActiveSet{}, ErrNoActiveMonitors
	}

	set := ActiveSet{sources: active}

	logger.WarnKV(ctx, "Tripwire armed", "modes", set.String())

	if s.notifier != nil {
		s.notifier.Notify(ctx, "Tripwire armed", fmt.Sprintf("Armed (%s)", set))
	}

	return set, nil
}

var errNoFactory = errors.New("no monitor is available for this mode")

// start builds and launches the monitor for source.
func (s *Supervisor) start(ctx context.Context, source trigger.Source, sender bus.Sender) (*running, error) {
	factory, ok := s.registry[source]
	if !ok {
		return nil, errNoFactory
	}

	m, err := factory(ctx)
	if err != nil {
		return nil, err
	}

	r := &running{
		source: source,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(r.done)

		r.err = m.Start(ctx, sender)

		if r.err != nil {
			logger.WarnKV(ctx, "Monitor stopped", "mode", source.String(), "error", r.err)
			return
		}

		logger.DebugKV(ctx, "Monitor finished", "mode", source.String())
	}()

	return r, nil
}

// waitGrace sleeps through the grace window when any probed monitor started.
func (s *Supervisor) waitGrace(ctx context.Context, started []*running) error {
	probing := slices.ContainsFunc(started, func(r *running) bool {
		return slices.Contains(s.probed, r.source)
	})

	if !probing || s.grace == 0 {
		return nil
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// stopped reports whether the monitor goroutine has ended.
func (r *running) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
