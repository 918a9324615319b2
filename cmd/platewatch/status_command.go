package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"platewatch/internal/api"
	"platewatch/internal/apiclient"
	"platewatch/internal/config"
	"platewatch/internal/daemonctl"
	"platewatch/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker status for the configured camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			reqCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			status, statusErr := client.Status(reqCtx)
			if statusErr != nil && !apiclient.IsAPIUnavailable(statusErr) {
				return statusErr
			}
			live := statusErr == nil

			if jsonOutput {
				if live {
					return writeJSON(cmd, status)
				}
				return writeJSON(cmd, offlineStatus(cfg))
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			var lines []string
			if live {
				lines = renderLiveStatus(status, colorize)
			} else {
				lines = renderOfflineStatus(cmd.Context(), cfg, colorize)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

func offlineStatus(cfg *config.Config) api.WorkerStatus {
	running, _ := daemonctl.IsRunning(cfg)
	status := api.WorkerStatus{
		Running:      running,
		CameraID:     cfg.Camera.ID,
		MountPath:    cfg.Camera.MountPath,
		DryRun:       cfg.Events.DryRun,
		LockFilePath: cfg.LockPath(),
	}
	if pid, err := daemonctl.ReadPID(cfg.PIDPath()); err == nil && running {
		status.PID = pid
	}
	if cfg.Journal.Enabled {
		status.JournalPath = cfg.JournalPath()
	}
	return status
}

func renderLiveStatus(s api.WorkerStatus, colorize bool) []string {
	lines := renderSectionHeader("Worker "+s.CameraID, colorize)
	lines = append(lines,
		renderStatusLine("Worker", statusOK, fmt.Sprintf("running (pid %d, up %s)", s.PID, formatUptime(s.UptimeSeconds)), colorize),
		renderValueLine("Source", s.Source),
		renderValueLine("Mount path", s.MountPath),
		renderValueLine("Run id", s.RunID),
	)
	if s.DryRun {
		lines = append(lines, renderStatusLine("Delivery", statusWarn, "dry-run (events are logged only)", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Capture", colorize)...)
	captureKind := statusOK
	if s.Capture.ReadErrors > 0 {
		captureKind = statusWarn
	}
	lines = append(lines,
		renderStatusLine("Frames read", captureKind, fmt.Sprintf("%d read, %d submitted, %d skipped", s.Capture.FramesRead, s.Capture.Submitted, s.Capture.Skipped), colorize),
		renderValueLine("Reconnects", fmt.Sprintf("%d (read errors %d)", s.Capture.Reconnects, s.Capture.ReadErrors)),
		renderValueLine("Workers", fmt.Sprintf("%d (in flight %d, dropped %d)", s.Scheduler.Workers, s.Scheduler.InFlight, s.Scheduler.Dropped)),
	)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Decisions", colorize)...)
	errKind := statusOK
	if s.Frames.Errors > 0 {
		errKind = statusWarn
	}
	lines = append(lines,
		renderValueLine("Frames processed", fmt.Sprintf("%d (%d detections)", s.Frames.Frames, s.Frames.Detections)),
		renderValueLine("Rejected", fmt.Sprintf("%d", s.Frames.Rejected)),
		renderValueLine("Pending", fmt.Sprintf("%d (tracking %d plates)", s.Frames.Pending, s.Sightings)),
		renderValueLine("Suppressed", fmt.Sprintf("%d (%d recent plates)", s.Frames.Suppressed, s.RecentPlates)),
		renderValueLine("Emitted", fmt.Sprintf("%d (%d high confidence, %d throttled)", s.Frames.Emitted, s.Frames.HighConfidence, s.Frames.Throttled)),
		renderStatusLine("Errors", errKind, fmt.Sprintf("%d", s.Frames.Errors), colorize),
	)
	if s.LastEvent != nil {
		lines = append(lines, renderValueLine("Last event", fmt.Sprintf("%s at %s", s.LastEvent.Plate, s.LastEvent.Timestamp)))
	}
	return lines
}

func renderOfflineStatus(ctx context.Context, cfg *config.Config, colorize bool) []string {
	status := offlineStatus(cfg)
	lines := renderSectionHeader("Worker "+cfg.Camera.ID, colorize)
	switch {
	case status.Running:
		lines = append(lines, renderStatusLine("Worker", statusWarn, "running but API unreachable at "+cfg.API.Bind, colorize))
	default:
		lines = append(lines, renderStatusLine("Worker", statusInfo, "not running", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Environment", colorize)...)
	for _, check := range []preflight.Result{
		preflight.CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		preflight.CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		preflight.CheckSource(ctx, cfg),
	} {
		lines = append(lines, renderCheck(check, colorize))
	}
	if cfg.Journal.Enabled {
		lines = append(lines, renderCheck(preflight.CheckJournal(ctx, cfg.JournalPath()), colorize))
	}
	return lines
}

func renderCheck(r preflight.Result, colorize bool) string {
	kind := statusOK
	if !r.Passed {
		kind = statusError
	}
	return renderStatusLine(r.Name, kind, r.Detail, colorize)
}

func formatUptime(seconds float64) string {
	return (time.Duration(seconds) * time.Second).Round(time.Second).String()
}
