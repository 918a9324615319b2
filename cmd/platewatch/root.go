package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	rootCmd := &cobra.Command{
		Use:           "platewatch",
		Short:         "License plate recognition worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.flags.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.flags.cameraID, "camera-id", "", "Override camera.id")
	flags.StringVar(&ctx.flags.sourceURL, "source", "", "Override camera.source_url (rtsp://, /dev/videoN or dir://path)")
	flags.StringVar(&ctx.flags.backendURL, "backend", "", "Override events.backend_url")
	flags.Float64Var(&ctx.flags.pollInterval, "poll-interval", 0, "Override capture.poll_interval in seconds")
	flags.BoolVar(&ctx.flags.dryRun, "dry-run", false, "Log events instead of delivering them")
	flags.StringVar(&ctx.flags.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	flags.StringVar(&ctx.flags.apiBind, "api-bind", "", "Override api.bind")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newStartCommand(ctx))
	rootCmd.AddCommand(newStopCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newEventsCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newTestEventCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newPreflightCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
