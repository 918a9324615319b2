package main

import (
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"platewatch/internal/annotate"
	"platewatch/internal/eventsink"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
)

func newTestEventCommand(ctx *commandContext) *cobra.Command {
	var (
		plate     string
		imagePath string
	)
	cmd := &cobra.Command{
		Use:   "test-event",
		Short: "Send a synthetic plate event to the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			normalized := lpr.NormalizePlate(plate)
			if normalized == "" {
				return fmt.Errorf("plate %q normalizes to nothing", plate)
			}
			event := lpr.Event{
				CameraID:      cfg.Camera.ID,
				Plate:         normalized,
				PlateRaw:      plate,
				DetConfidence: 1,
				OCRConfidence: 1,
				MountPath:     cfg.Camera.MountPath,
				Timestamp:     lpr.FormatTimestamp(time.Now()),
				Meta: lpr.EventMeta{
					BBox:            []int{0, 0, 0, 0},
					CharConfidences: []float64{},
					ConfirmedBy:     "test",
				},
			}
			if path := strings.TrimSpace(imagePath); path != "" {
				snapshot, err := loadSnapshot(path, cfg.Artifacts.JPEGQuality)
				if err != nil {
					return err
				}
				event.Meta.SnapshotJPEGB64 = snapshot
			}

			logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: "console", OutputPaths: []string{"stderr"}})
			if err != nil {
				return err
			}
			client := eventsink.NewFromConfig(cfg, logger, eventsink.WithRetryMaxAttempts(1))
			status, err := client.Send(cmd.Context(), event)
			out := cmd.OutOrStdout()
			if err != nil {
				fmt.Fprintf(out, "Delivery failed (status %d): %v\n", status, err)
				return err
			}
			if cfg.Events.DryRun {
				fmt.Fprintf(out, "Dry-run: event for %s logged, not sent\n", normalized)
				return nil
			}
			fmt.Fprintf(out, "Backend accepted event for %s (status %d)\n", normalized, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&plate, "plate", "TEST123", "Plate text to send")
	cmd.Flags().StringVar(&imagePath, "image", "", "Attach this image as the snapshot")
	return cmd
}

func loadSnapshot(path string, quality int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode snapshot: %w", err)
	}
	data, err := annotate.EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
