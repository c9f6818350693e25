package power

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/oshokin/tripwire/internal/logger"
)

// ErrUnsupportedOS indicates the current OS is not supported for power-off.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// Runner executes external programs.
type Runner interface {
	// Run starts the program and waits for it to exit.
	Run(ctx context.Context, name string, args ...string) error
	// Start starts the program without waiting.
	Start(ctx context.Context, name string, args ...string) error
}

// System dismounts VeraCrypt volumes and powers off with the OS tools.
type System struct {
	goos          string
	veraCryptPath string
	runner        Runner
	flush         func()
}

// Option configures System.
type Option func(*System)

// WithRunner replaces the os/exec runner.
func WithRunner(r Runner) Option {
	return func(s *System) {
		s.runner = r
	}
}

// WithOS overrides the detected operating system.
func WithOS(goos string) Option {
	return func(s *System) {
		s.goos = goos
	}
}

// NewSystem creates the real tools. An empty veraCryptPath selects the
// platform default.
func NewSystem(veraCryptPath string, opts ...Option) *System {
	s := &System{
		goos:          runtime.GOOS,
		veraCryptPath: veraCryptPath,
		runner:        execRunner{},
		flush:         syncFilesystems,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.veraCryptPath == "" {
		s.veraCryptPath = DefaultVeraCryptPath(s.goos)
	}

	return s
}

// Dismount force-dismounts every VeraCrypt volume and waits for it.
func (s *System) Dismount(ctx context.Context) error {
	if err := s.runner.Run(ctx, s.veraCryptPath, dismountArgs(s.goos)...); err != nil {
		return fmt.Errorf("dismount volumes: %w", err)
	}

	return nil
}

// PowerOff flushes filesystems and starts a forced power-off.
// The command is started asynchronously; the OS takes over the rest.
func (s *System) PowerOff(ctx context.Context) error {
	name, args, err := powerOffCommand(s.goos)
	if err != nil {
		return err
	}

	s.flush()

	if err = s.runner.Start(ctx, name, args...); err != nil {
		return fmt.Errorf("power off: %w", err)
	}

	return nil
}

// DryRun logs the tool invocations instead of running them.
type DryRun struct {
	goos          string
	veraCryptPath string
}

// NewDryRun creates tools that only log.
func NewDryRun(veraCryptPath string) *DryRun {
	if veraCryptPath == "" {
		veraCryptPath = DefaultVeraCryptPath(runtime.GOOS)
	}

	return &DryRun{
		goos:          runtime.GOOS,
		veraCryptPath: veraCryptPath,
	}
}

// Dismount logs the dismount command.
func (d *DryRun) Dismount(ctx context.Context) error {
	logger.WarnKV(ctx, "Dry run, not dismounting",
		"command", d.veraCryptPath+" "+strings.Join(dismountArgs(d.goos), " "))

	return nil
}

// PowerOff logs the power-off command.
func (d *DryRun) PowerOff(ctx context.Context) error {
	name, args, err := powerOffCommand(d.goos)
	if err != nil {
		return err
	}

	logger.WarnKV(ctx, "Dry run, not powering off", "command", name+" "+strings.Join(args, " "))

	return nil
}

// DefaultVeraCryptPath returns the usual VeraCrypt location for goos.
func DefaultVeraCryptPath(goos string) string {
	switch goos {
	case "windows":
		return `C:\Program Files\VeraCrypt\VeraCrypt.exe`
	case "darwin":
		return "/Applications/VeraCrypt.app/Contents/MacOS/VeraCrypt"
	default:
		return "veracrypt"
	}
}

// dismountArgs returns the force-dismount-all arguments.
func dismountArgs(goos string) []string {
	if goos == "windows" {
		return []string{"/d", "/f", "/w", "/q", "/s"}
	}

	return []string{"-d", "-f"}
}

// powerOffCommand returns the forced power-off command for goos.
func powerOffCommand(goos string) (string, []string, error) {
	switch goos {
	case "windows":
		return "shutdown", []string{"/p", "/f"}, nil
	case "darwin":
		return "halt", []string{"-q"}, nil
	case "linux":
		return "systemctl", []string{"poweroff", "-f"}, nil
	default:
		return "", nil, fmt.Errorf("%s: %w", goos, ErrUnsupportedOS)
	}
}

// execRunner runs programs with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}

	return nil
}

func (execRunner) Start(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Start()
}
