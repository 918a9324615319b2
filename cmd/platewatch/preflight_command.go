package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"platewatch/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, the frame source and service endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			results := preflight.RunAll(cmd.Context(), cfg)
			lines := renderSectionHeader("Preflight "+cfg.Camera.ID, colorize)
			failed := 0
			for _, r := range results {
				lines = append(lines, renderCheck(r, colorize))
				if !r.Passed {
					failed++
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}
}
