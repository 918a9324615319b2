// Package daemonrun assembles a platewatch worker process from configuration
// and runs it until interrupted.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"platewatch/internal/config"
	"platewatch/internal/daemon"
	"platewatch/internal/deps"
	"platewatch/internal/eventsink"
	"platewatch/internal/inference"
	"platewatch/internal/journal"
	"platewatch/internal/logging"
	"platewatch/internal/notifications"
	"platewatch/internal/source"
	"platewatch/internal/storage"
)

const (
	logHubCapacity   = 4096
	logRetentionKeep = 5
)

// Options configures worker process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
}

// Run starts the platewatch worker for cfg's camera and blocks until SIGINT,
// SIGTERM or cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("platewatch-%s-%s.log", cfg.Camera.ID, stamp))
	logHub := logging.NewStreamHub(logHubCapacity)
	logger, err := logging.NewFromConfig(cfg, logPath, logHub, runID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update platewatch.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, time.Now(),
		logging.RetentionTarget{
			Dir:     cfg.Paths.LogDir,
			Pattern: "platewatch-" + cfg.Camera.ID + "-*.log",
			Exclude: []string{logPath},
			Keep:    logRetentionKeep,
		},
	)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = journal.Open(cfg.JournalPath())
		if err != nil {
			logger.Error("open event journal", logging.Error(err))
			return err
		}
		defer j.Close()
	}

	src, err := source.Open(cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "open frame source failed", "source_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check camera.source_url and the ffmpeg binary"),
		)
		return fmt.Errorf("open source: %w", err)
	}

	artifacts, err := storage.FromConfig(cfg, logger)
	if err != nil {
		src.Close()
		return fmt.Errorf("artifact storage: %w", err)
	}

	d, err := daemon.New(cfg, logger, daemon.Components{
		Source:     src,
		Detector:   inference.NewDetector(cfg.Detector.Endpoint, cfg.Detector.MinConfidence, cfg.Detector.TimeoutSeconds),
		Recognizer: inference.NewRecognizer(cfg.Recognizer.Endpoint, cfg.Recognizer.TimeoutSeconds),
		Sink:       eventsink.NewFromConfig(cfg, logger),
		Artifacts:  artifacts,
		Journal:    j,
		LogHub:     logHub,
		Notifier:   notifications.NewService(cfg),
		RunID:      runID,
	})
	if err != nil {
		src.Close()
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Run(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "worker stopped with error", "worker_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, api bind address and journal access"),
		)
		return err
	}
	logger.Info("platewatch worker shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "platewatch.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := deps.ResolveFFmpeg(cfg.FFmpegBinary())
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.CameraID(cfg.Camera.ID),
		logging.String("source", source.Describe(cfg.Camera.SourceURL)),
		logging.Bool("ffmpeg_available", ffmpeg.Available),
		logging.String("ffmpeg_binary", ffmpeg.Command),
		logging.String("ffmpeg_version", deps.ProbeVersion(ctx, ffmpeg)),
		logging.String("detector_endpoint", cfg.Detector.Endpoint),
		logging.String("recognizer_endpoint", cfg.Recognizer.Endpoint),
		logging.String("backend_url", cfg.Events.BackendURL),
		logging.Bool("backend_token_present", strings.TrimSpace(cfg.Events.Token) != ""),
		logging.Bool("jwt_secret_present", strings.TrimSpace(cfg.Events.JWTSecret) != ""),
		logging.Bool("cloudinary_enabled", cfg.Cloudinary.Enabled),
		logging.Bool("journal_enabled", cfg.Journal.Enabled),
		logging.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.Bool("dry_run", cfg.Events.DryRun),
	)
}
