package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"platewatch/internal/api"
	"platewatch/internal/apiclient"
	"platewatch/internal/config"
	"platewatch/internal/journal"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the emitted event journal",
	}
	cmd.AddCommand(newEventsListCommand(ctx))
	cmd.AddCommand(newEventsPruneCommand(ctx))
	return cmd
}

func newEventsListCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		plate      string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent emissions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			items, err := listEvents(cmd.Context(), ctx, cfg, limit, plate)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.EventListResponse{Events: items})
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			fmt.Fprintln(out, renderEventsTable(items))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events")
	cmd.Flags().StringVar(&plate, "plate", "", "Only show this plate")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON")
	return cmd
}

// listEvents prefers the worker API and falls back to reading the journal
// directly when no worker is reachable.
func listEvents(cmdCtx context.Context, ctx *commandContext, cfg *config.Config, limit int, plate string) ([]api.EventItem, error) {
	client, err := ctx.apiClient()
	if err != nil {
		return nil, err
	}
	reqCtx, cancel := context.WithTimeout(cmdCtx, 5*time.Second)
	defer cancel()
	resp, err := client.Events(reqCtx, apiclient.EventQuery{Limit: limit, Plate: plate})
	if err == nil {
		return resp.Events, nil
	}
	if !apiclient.IsAPIUnavailable(err) {
		return nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, fmt.Errorf("worker API unreachable and journal disabled")
	}

	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return nil, err
	}
	defer j.Close()
	entries, err := j.List(cmdCtx, journal.ListOptions{Limit: limit, Plate: plate, CameraID: cfg.Camera.ID})
	if err != nil {
		return nil, err
	}
	return api.FromEntries(entries), nil
}

func renderEventsTable(items []api.EventItem) string {
	table := make([][]string, 0, len(items))
	for _, item := range items {
		delivered := "yes"
		switch {
		case item.DeliveryError != "":
			delivered = "no: " + truncate(item.DeliveryError, 40)
		case !item.Delivered:
			delivered = "no"
		}
		table = append(table, []string{
			item.DecidedAt,
			item.Plate,
			strconv.FormatFloat(item.DetConfidence, 'f', 2, 64),
			strconv.FormatFloat(item.OCRConfidence, 'f', 2, 64),
			strconv.FormatFloat(item.CombinedScore, 'f', 3, 64),
			yesNo(item.HighConfidence),
			item.ConfirmedBy,
			strconv.Itoa(item.StatusCode),
			delivered,
		})
	}
	return renderTable("", []string{"Decided", "Plate", "Det", "OCR", "Score", "High", "Confirmed", "Status", "Delivered"}, table, 2, 3, 4, 7)
}

func newEventsPruneCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return fmt.Errorf("journal is disabled")
			}
			if days <= 0 {
				days = cfg.Journal.RetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("retention days must be positive")
			}
			j, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return err
			}
			defer j.Close()
			removed, err := j.Prune(cmd.Context(), time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "older-than", 0, "Age in days (defaults to journal.retention_days)")
	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
