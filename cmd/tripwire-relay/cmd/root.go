package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/service/relay"
	"github.com/oshokin/tripwire/internal/version"
)

var (
	// configPath to the configuration file.
	configPath string

	// rootCmd represents the base command for running the relay.
	rootCmd = &cobra.Command{
		Use:   "tripwire-relay [listen-address]",
		Short: "Run the remote control relay for tripwire bots.",
		Long: `Starts the gRPC relay that carries operator commands to armed tripwires.

Each bot authenticates with a token from the relay.bots section of the configuration.
Operators post commands with tripwire-ctl, armed tripwires receive them and reply.
Listen address can be provided as argument to override config (e.g., :45380).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &relay.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
			}

			return relay.Run(ctx, options)
		},
	}
)

// Execute runs the tripwire-relay CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
