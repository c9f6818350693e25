package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/service/ctl"
	"github.com/oshokin/tripwire/internal/version"
)

var (
	// configPath to the configuration file.
	configPath string
	// address overrides the relay address.
	address string
	// chat overrides the operator chat name.
	chat string
	// wait is how long replies are printed.
	wait = ctl.DefaultWait

	// rootCmd represents the base command for operator commands.
	rootCmd = &cobra.Command{
		Use:   "tripwire-ctl alive|status|fire <secret>",
		Short: "Send an operator command to armed tripwires.",
		Long: `Posts an operator command through the relay and prints the replies.

  alive          reset the heartbeat timer
  status         show the time left before the heartbeat expires
  fire <secret>  trigger the remote kill command

Replies are printed until --wait elapses; use --wait 0 to return right away.`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{ctl.ActionAlive, ctl.ActionStatus, ctl.ActionFire},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var secret string
			if len(args) > 1 {
				secret = args[1]
			}

			options := &ctl.Options{
				ConfigPath: configPath,
				Address:    address,
				Chat:       chat,
				Action:     args[0],
				Secret:     secret,
				Wait:       wait,
				Out:        cmd.OutOrStdout(),
			}

			return ctl.Run(ctx, options)
		},
	}
)

// Execute runs the tripwire-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&address, "address", "a", "", "relay address, overrides remote.address")
	rootCmd.Flags().StringVar(&chat, "chat", "", "chat name to post from (default user@host)")
	rootCmd.Flags().DurationVarP(&wait, "wait", "w", ctl.DefaultWait, "how long to print replies")
}
