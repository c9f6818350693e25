package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/service/arm"
	"github.com/oshokin/tripwire/internal/version"
)

var (
	// configPath to the configuration file.
	configPath string
	// modes is the comma-separated list of monitors to arm.
	modes string
	// logLevel overrides the configured log level.
	logLevel string
	// triggerNow skips the monitors and runs the protective actions at once.
	triggerNow bool
	// debug replaces the protective tools with a dry run.
	debug bool

	// rootCmd represents the base command for arming the tripwire.
	rootCmd = &cobra.Command{
		Use:   "tripwire",
		Short: "Arm the tripwire and protect this PC.",
		Long: `Arms a set of independent tripwire monitors and waits for the first one to fire.

Available modes (comma-separated, default "all"):
  network   (net)    UDP datagram carrying the trigger phrase
  remote    (bot)    remote kill command with the secret parameter
  device    (usb)    configured USB device plugged in
  button    (flic)   long press of a paired Flic button
  heartbeat (timer)  no /alive heartbeat within the timeout

When a monitor fires, the trigger is recorded, broadcast to the local network,
encrypted volumes are dismounted and the machine is powered off.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &arm.Options{
				ConfigPath: configPath,
				Modes:      modes,
				LogLevel:   logLevel,
				Trigger:    triggerNow,
				Debug:      debug,
			}

			return arm.Run(ctx, options)
		},
	}

	// lastCmd prints the last trigger record.
	lastCmd = &cobra.Command{
		Use:   "last",
		Short: "Print the last recorded trigger.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return arm.Last(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	}
)

// Execute runs the tripwire CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(lastCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&modes, "mode", "m", arm.DefaultModes, "monitors to arm, comma-separated")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVarP(&triggerNow, "trigger", "t", false, "run the protective actions immediately")

	// Hidden debug flag to log the protective tools instead of running them.
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "dry-run the protective tools")

	err := rootCmd.Flags().MarkHidden("debug")
	if err != nil {
		panic(err)
	}
}
