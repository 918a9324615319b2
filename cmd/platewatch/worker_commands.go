package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"platewatch/internal/daemonctl"
	"platewatch/internal/daemonrun"
)

const (
	stopGracePeriod  = 10 * time.Second
	startWaitTimeout = 5 * time.Second
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the worker in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: ctx.flags.logLevel})
		},
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a detached worker for the configured camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			running, err := daemonctl.IsRunning(cfg)
			if err != nil {
				return err
			}
			if running {
				fmt.Fprintf(out, "Worker for %s is already running\n", cfg.Camera.ID)
				return nil
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			if err := daemonctl.Launch(exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath,
				CameraID:   cfg.Camera.ID,
			}); err != nil {
				return err
			}
			deadline := time.Now().Add(startWaitTimeout)
			for time.Now().Before(deadline) {
				if running, _ := daemonctl.IsRunning(cfg); running {
					fmt.Fprintf(out, "Worker for %s started\n", cfg.Camera.ID)
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return fmt.Errorf("worker did not start within %s; check %s", startWaitTimeout, cfg.Paths.LogDir)
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the worker for the configured camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cfg, stopGracePeriod)
			if errors.Is(err, daemonctl.ErrWorkerNotRunning) {
				fmt.Fprintf(out, "Worker for %s is not running\n", cfg.Camera.ID)
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Worker %d did not exit within %s and was killed\n", result.PID, stopGracePeriod)
				return nil
			}
			fmt.Fprintf(out, "Worker %d stopped\n", result.PID)
			return nil
		},
	}
}
