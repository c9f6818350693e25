package arm

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
	triggerrepo "github.com/oshokin/tripwire/internal/repository/trigger"
	"github.com/oshokin/tripwire/internal/service/common"
	"github.com/oshokin/tripwire/internal/service/executor"
	"github.com/oshokin/tripwire/internal/service/instance"
	"github.com/oshokin/tripwire/internal/service/notify"
	"github.com/oshokin/tripwire/internal/service/power"
	"github.com/oshokin/tripwire/internal/service/supervisor"
)

// Options controls how the tripwire is armed.
type Options struct {
	// ConfigPath specifies the path to the settings file.
	ConfigPath string
	// Modes is the comma-separated list of monitors to arm.
	Modes string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Trigger skips the monitors and runs the protective actions at once.
	Trigger bool
	// Debug replaces the protective tools with a dry run.
	Debug bool

	// Tools overrides the protective tools.
	Tools executor.Tools
	// Broadcaster overrides the UDP broadcaster.
	Broadcaster executor.Broadcaster
	// Notifier overrides the desktop notifier.
	Notifier notify.Notifier
	// Alerter overrides the full-screen alert.
	Alerter notify.Alerter
	// GraceWindow overrides the supervisor probe window when positive.
	GraceWindow time.Duration
}

// DefaultModes arms every monitor.
const DefaultModes = "all"

// Run arms the tripwire and blocks until it fired and the protective
// actions finished, or until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "tripwire")

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	deps := newDependencies(cfg, opts)

	if opts.Trigger {
		logger.Warn(ctx, "Manual trigger requested, skipping monitors")

		return deps.fire(ctx, trigger.NewEvent(trigger.Manual), nil)
	}

	lock, err := instance.Acquire(cfg.LockFile)
	if err != nil {
		return err
	}

	defer func() {
		_ = lock.Release()
	}()

	monitorCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry, closeRegistry := newRegistry(cfg)
	defer closeRegistry()

	modes := opts.Modes
	if modes == "" {
		modes = DefaultModes
	}

	resolveEndpoints(ctx, cfg, modes)

	var supervisorOptions []supervisor.Option
	if opts.GraceWindow > 0 {
		supervisorOptions = append(supervisorOptions, supervisor.WithGraceWindow(opts.GraceWindow))
	}

	sender, receiver := bus.New()

	active, err := supervisor.New(registry, deps.notifier, supervisorOptions...).Arm(monitorCtx, modes, sender)
	if err != nil {
		return err
	}

	ev, err := receiver.Recv(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info(ctx, "Disarmed")
			return nil
		}

		return fmt.Errorf("wait for trigger: %w", err)
	}

	return deps.fire(ctx, ev, active.Sources())
}

// loadConfig loads settings and applies the log level.
func loadConfig(ctx context.Context, opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	levelName := cfg.LogLevel
	if opts.LogLevel != "" {
		levelName = opts.LogLevel
	}

	if level, ok := logger.ParseLogLevel(levelName); ok {
		logger.SetLevel(level)
	}

	return cfg, nil
}

// resolveEndpoints fills in the endpoints the selected modes connect to.
// A failure only degrades the modes using that endpoint.
func resolveEndpoints(ctx context.Context, cfg *config.Config, modes string) {
	selected, _ := trigger.ParseModes(modes)

	var targets config.Endpoint

	for _, source := range selected {
		switch source {
		case trigger.PhysicalButton:
			targets |= config.EndpointButton
		case trigger.RemoteCommand, trigger.HeartbeatTimeout:
			targets |= config.EndpointRemote
		default:
		}
	}

	if err := cfg.ResolveEndpoints(ctx, targets); err != nil {
		logger.WarnKV(ctx, "Endpoint auto-detection failed", "error", err)
	}
}

// dependencies are the collaborators of the protective sequence.
type dependencies struct {
	cfg         *config.Config
	tools       executor.Tools
	broadcaster executor.Broadcaster
	notifier    notify.Notifier
	alerter     notify.Alerter
	repo        triggerrepo.Repository
}

func newDependencies(cfg *config.Config, opts *Options) *dependencies {
	deps := &dependencies{
		cfg:         cfg,
		tools:       opts.Tools,
		broadcaster: opts.Broadcaster,
		notifier:    opts.Notifier,
		alerter:     opts.Alerter,
		repo:        triggerrepo.NewFileRepository(cfg.StateFile),
	}

	if deps.tools == nil {
		if opts.Debug {
			deps.tools = power.NewDryRun(cfg.Actions.VeraCryptPath)
		} else {
			deps.tools = power.NewSystem(cfg.Actions.VeraCryptPath)
		}
	}

	if deps.broadcaster == nil {
		deps.broadcaster = executor.NewUDPBroadcaster(cfg.Network)
	}

	if deps.notifier == nil || deps.alerter == nil {
		desktop := notify.NewDesktop()

		if deps.notifier == nil {
			deps.notifier = desktop
		}

		if deps.alerter == nil {
			deps.alerter = desktop
		}
	}

	return deps
}

// fire runs the protective sequence for ev and holds the process until the
// sequence finished and the hold time passed.
func (d *dependencies) fire(ctx context.Context, ev trigger.Event, active []trigger.Source) error {
	actor, err := common.DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Failed to detect actor", "error", err)
	}

	hold := time.NewTimer(d.cfg.Actions.Hold)
	defer hold.Stop()

	done := executor.New(d.broadcaster, d.tools,
		executor.WithDelay(d.cfg.Actions.Delay),
		executor.WithRecorder(&recorder{
			repo:   d.repo,
			actor:  actor,
			active: active,
		}),
	).Execute(ctx, ev)

	d.alerter.ShowFullScreenAlert(ctx)

	<-done
	<-hold.C

	logger.Info(ctx, "Protective actions finished, exiting")

	return nil
}

// recorder saves the trigger record before the actions start.
type recorder struct {
	repo   triggerrepo.Repository
	actor  *trigger.Actor
	active []trigger.Source
}

func (r *recorder) Record(ctx context.Context, ev trigger.Event) error {
	return r.repo.Save(ctx, trigger.NewRecord(ev, r.actor, r.active))
}
