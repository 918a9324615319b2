package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"platewatch/internal/apiclient"
	"platewatch/internal/logging"
)

const logPollInterval = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent worker logs from the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			resp, err := client.Logs(cmd.Context(), apiclient.LogQuery{Limit: limit})
			if err != nil {
				if apiclient.IsAPIUnavailable(err) {
					cfg := ctx.configValue()
					return fmt.Errorf("worker API unreachable; the current log file is %s/platewatch.log", cfg.Paths.LogDir)
				}
				return err
			}
			printLogEvents(out, resp.Events)
			if !follow {
				return nil
			}
			return followLogs(cmd.Context(), client, out, resp.Next)
		},
	}
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new events")
	return cmd
}

func followLogs(ctx context.Context, client *apiclient.Client, out io.Writer, since uint64) error {
	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		resp, err := client.Logs(ctx, apiclient.LogQuery{Since: since})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		printLogEvents(out, resp.Events)
		since = resp.Next
	}
}

func printLogEvents(out io.Writer, events []logging.LogEvent) {
	for _, evt := range events {
		fmt.Fprintln(out, formatLogEvent(evt))
	}
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("2006-01-02 15:04:05"))
	b.WriteString(" ")
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(evt.Level))
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	b.WriteString(" ")
	b.WriteString(evt.Message)
	if evt.FrameSeq > 0 {
		fmt.Fprintf(&b, " frame=%d", evt.FrameSeq)
	}
	if evt.Plate != "" {
		fmt.Fprintf(&b, " plate=%s", evt.Plate)
	}
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, evt.Fields[k])
	}
	return b.String()
}
