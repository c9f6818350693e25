package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/oshokin/tripwire/internal/logger"
)

// Notifier shows a short desktop notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// Alerter shows the full-screen alert once the tripwire fired.
type Alerter interface {
	ShowFullScreenAlert(ctx context.Context)
}

// command is one helper program invocation.
type command struct {
	name string
	args []string
	env  []string
}

// Starter launches a helper program without waiting for it.
type Starter func(ctx context.Context, cmd *exec.Cmd) error

// Alert texts.
const (
	alertTitle   = "!!! TRIPWIRE !!!"
	alertMessage = "CRITICAL SECURITY ALERT\n\n" +
		"System shutdown in progress\n" +
		"All encrypted volumes will be dismounted"
)

// Desktop implements Notifier and Alerter with the platform helper programs.
type Desktop struct {
	goos    string
	console io.Writer
	start   Starter
}

// DesktopOption configures Desktop.
type DesktopOption func(*Desktop)

// WithConsole sets where the alert banner is printed.
func WithConsole(w io.Writer) DesktopOption {
	return func(d *Desktop) {
		d.console = w
	}
}

// WithStarter replaces process creation.
func WithStarter(s Starter) DesktopOption {
	return func(d *Desktop) {
		d.start = s
	}
}

// withOS overrides the detected operating system.
func withOS(goos string) DesktopOption {
	return func(d *Desktop) {
		d.goos = goos
	}
}

// NewDesktop creates the desktop surfaces.
func NewDesktop(opts ...DesktopOption) *Desktop {
	d := &Desktop{
		goos:    runtime.GOOS,
		console: os.Stderr,
		start: func(_ context.Context, cmd *exec.Cmd) error {
			return cmd.Start()
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Notify implements Notifier.
func (d *Desktop) Notify(ctx context.Context, title, body string) {
	cmd, ok := notifyCommand(d.goos, title, body)
	if !ok {
		logger.DebugKV(ctx, "Desktop notifications are not supported", "os", d.goos)
		return
	}

	d.launch(ctx, cmd)
}

// ShowFullScreenAlert implements Alerter. It prints a console banner and
// opens a blocking alert dialog on the desktop.
func (d *Desktop) ShowFullScreenAlert(ctx context.Context) {
	fmt.Fprintf(d.console, "\n%s\n\n%s\n\n", alertTitle, alertMessage)

	cmd, ok := alertCommand(d.goos)
	if !ok {
		return
	}

	d.launch(ctx, cmd)
}

func (d *Desktop) launch(ctx context.Context, c command) {
	cmd := exec.CommandContext(context.WithoutCancel(ctx), c.name, c.args...)
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	if err := d.start(ctx, cmd); err != nil {
		logger.DebugKV(ctx, "Failed to start desktop helper", "program", c.name, "error", err)
		return
	}

	if cmd.Process != nil {
		go func() {
			_ = cmd.Wait()
		}()
	}
}

// notifyCommand returns the notification helper for goos.
func notifyCommand(goos, title, body string) (command, bool) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return command{
			name: "notify-send",
			args: []string{title, body},
			env:  []string{"DISPLAY=:0.0"},
		}, true
	case "darwin":
		return command{
			name: "osascript",
			args: []string{"-e", fmt.Sprintf("display notification %s with title %s",
				appleScriptString(body), appleScriptString(title))},
		}, true
	case "windows":
		script := "[void][Reflection.Assembly]::LoadWithPartialName('System.Windows.Forms');" +
			"$n = New-Object System.Windows.Forms.NotifyIcon;" +
			"$n.Icon = [System.Drawing.SystemIcons]::Warning;" +
			"$n.Visible = $true;" +
			fmt.Sprintf("$n.ShowBalloonTip(5000, %s, %s, 'Warning');", powerShellString(title), powerShellString(body)) +
			"Start-Sleep -Seconds 6"

		return command{
			name: "powershell",
			args: []string{"-NoProfile", "-NonInteractive", "-Command", script},
		}, true
	default:
		return command{}, false
	}
}

// alertCommand returns the modal alert helper for goos.
func alertCommand(goos string) (command, bool) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return command{
			name: "zenity",
			args: []string{"--error", "--title", alertTitle, "--text", alertMessage, "--width", "800"},
			env:  []string{"DISPLAY=:0.0"},
		}, true
	case "darwin":
		return command{
			name: "osascript",
			args: []string{"-e", fmt.Sprintf("display alert %s message %s as critical",
				appleScriptString(alertTitle), appleScriptString(alertMessage))},
		}, true
	case "windows":
		return command{
			name: "msg",
			args: []string{"*", alertTitle + " " + strings.ReplaceAll(alertMessage, "\n", " ")},
		}, true
	default:
		return command{}, false
	}
}

func appleScriptString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func powerShellString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
