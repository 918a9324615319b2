package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"platewatch/internal/api"
	"platewatch/internal/capture"
	"platewatch/internal/clock"
	"platewatch/internal/config"
	"platewatch/internal/dedup"
	"platewatch/internal/journal"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
	"platewatch/internal/notifications"
	"platewatch/internal/pipeline"
	"platewatch/internal/quality"
	"platewatch/internal/scoring"
	"platewatch/internal/sighting"
	"platewatch/internal/source"
	"platewatch/internal/storage"
)

// ErrAlreadyRunning is returned by Run when another worker holds the camera lock.
var ErrAlreadyRunning = errors.New("another platewatch worker is already running for this camera")

const journalPruneInterval = time.Hour

// Components are the collaborators the daemon drives. Source, Detector,
// Recognizer and Sink are required; everything else is optional.
type Components struct {
	Source     source.Source
	Detector   pipeline.Detector
	Recognizer pipeline.Recognizer
	Sink       pipeline.EventSink
	Artifacts  storage.Set
	Journal    *journal.Journal
	LogHub     *logging.StreamHub
	// Notifier receives plate alerts; nil disables them.
	Notifier notifications.Service
	Clock    clock.Clock
	// Sleep replaces the capture loop's reconnect sleeps (tests).
	Sleep capture.Sleeper
	// RunID identifies this process; generated when empty.
	RunID string
}

// Daemon runs one camera worker.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comps  Components
	clock  clock.Clock
	runID  string

	tracker   *sighting.Tracker
	dedup     *dedup.Deduplicator
	pipeline  *pipeline.Pipeline
	scheduler *capture.Scheduler
	loop      *capture.Loop
	api       *apiServer
	alerter   *notifications.Alerter

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	mu        sync.Mutex
	startedAt time.Time
}

// New validates components and assembles the decision and capture stack.
func New(cfg *config.Config, logger *slog.Logger, comps Components) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if comps.Source == nil || comps.Detector == nil || comps.Recognizer == nil || comps.Sink == nil {
		return nil, errors.New("daemon requires source, detector, recognizer and event sink")
	}
	clk := clock.Or(comps.Clock)
	runID := comps.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	filter, err := quality.New(quality.SettingsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("quality filter: %w", err)
	}
	tracker := sighting.NewTracker(sighting.Settings{
		ConfirmFrames: cfg.Confirmation.Frames,
		ConfirmWindow: cfg.ConfirmWindow(),
		TTL:           cfg.SightingsTTL(),
	}, clk)
	dd := dedup.New(dedup.Settings{Window: cfg.DedupWindow(), TTL: cfg.EmittedTTL()})

	var recorders pipeline.Recorders
	if comps.Journal != nil {
		recorders = append(recorders, comps.Journal)
	}
	var alerter *notifications.Alerter
	if notifications.Enabled(comps.Notifier) {
		alerter = notifications.NewAlerter(comps.Notifier, notifications.AlerterOptions{
			Watchlist:          cfg.Notifications.Watchlist,
			HighConfidenceOnly: cfg.Notifications.HighConfidenceOnly,
			DeliveryFailures:   cfg.Notifications.DeliveryFailures,
			Clock:              clk,
			Logger:             logger,
		})
		recorders = append(recorders, alerter)
	}
	var recorder pipeline.Recorder
	if len(recorders) > 0 {
		recorder = recorders
	}
	pl, err := pipeline.New(pipeline.Options{
		CameraID:                cfg.Camera.ID,
		MountPath:               cfg.Camera.MountPath,
		Filter:                  filter,
		Tracker:                 tracker,
		Dedup:                   dd,
		Scorer:                  scoring.New(scoring.SettingsFromConfig(cfg)),
		Detector:                comps.Detector,
		Recognizer:              comps.Recognizer,
		Sink:                    comps.Sink,
		Recorder:                recorder,
		Artifacts:               pipelineArtifacts(comps.Artifacts, cfg.Artifacts.JPEGQuality),
		MinEventInterval:        cfg.MinEventInterval(),
		IncludeSnapshot:         cfg.Events.IncludeSnapshot,
		CountSuppressedSighting: cfg.Confirmation.CountSuppressedSighting,
		Clock:                   clk,
		Logger:                  logger,
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		comps:    comps,
		clock:    clk,
		runID:    runID,
		tracker:  tracker,
		dedup:    dd,
		pipeline: pl,
		alerter:  alerter,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.scheduler = capture.NewScheduler(func(ctx context.Context, frame lpr.Frame) {
		d.pipeline.ProcessFrame(ctx, frame)
	}, cfg.Capture.MaxWorkers, logger)
	d.loop = capture.NewLoop(comps.Source, d.scheduler, capture.LoopOptions{
		PollInterval:    cfg.PollInterval(),
		ReconnectDelay:  cfg.ReconnectDelay(),
		ReconnectSettle: cfg.ReconnectSettle(),
		Clock:           clk,
		Sleep:           comps.Sleep,
		Logger:          logger,
	})
	if cfg.API.Enabled {
		d.api = newAPIServer(cfg, d, logger)
	}
	return d, nil
}

func pipelineArtifacts(set storage.Set, quality int) pipeline.Artifacts {
	return pipeline.Artifacts{
		Crops:       set.Crops,
		Frames:      set.Frames,
		Detections:  set.Detections,
		JPEGQuality: quality,
	}
}

// Run acquires the camera lock and runs until ctx is cancelled or a
// component fails. In-flight frames complete before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release worker lock", logging.Error(err))
		}
	}()

	d.mu.Lock()
	d.startedAt = d.clock.Now()
	d.mu.Unlock()

	d.restoreEmissions(ctx)

	if err := d.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	d.logger.Info("platewatch worker started",
		logging.String(logging.FieldEventType, "worker_started"),
		logging.CameraID(d.cfg.Camera.ID),
		logging.String("source", source.Describe(d.cfg.Camera.SourceURL)),
		logging.String("run_id", d.runID),
		logging.Int("workers", d.scheduler.Stats().Workers),
		logging.Bool("dry_run", d.cfg.Events.DryRun),
	)
	d.notifyLifecycle(ctx, notifications.EventWorkerStarted, notifications.Payload{
		"source": source.Describe(d.cfg.Camera.SourceURL),
	})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.loop.Run(gctx)
	})
	if d.api != nil {
		group.Go(func() error {
			return d.api.serve(gctx)
		})
	}
	if d.comps.Journal != nil && d.cfg.Journal.RetentionDays > 0 {
		group.Go(func() error {
			d.pruneJournal(gctx)
			return nil
		})
	}
	runErr := group.Wait()

	d.scheduler.Stop()
	if err := d.comps.Source.Close(); err != nil {
		d.logger.Debug("close source", logging.Error(err))
	}

	stats := d.pipeline.Stats()
	d.logger.Info("platewatch worker stopped",
		logging.String(logging.FieldEventType, "worker_stopped"),
		logging.Uint64("frames", stats.Frames),
		logging.Uint64("emitted", stats.Emitted),
		logging.Uint64("dropped_frames", d.scheduler.Stats().Dropped),
	)
	d.notifyLifecycle(context.WithoutCancel(ctx), notifications.EventWorkerStopped, notifications.Payload{
		"emitted": stats.Emitted,
	})
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func (d *Daemon) notifyLifecycle(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if d.alerter == nil || !d.cfg.Notifications.WorkerLifecycle {
		return
	}
	payload["cameraId"] = d.cfg.Camera.ID
	d.alerter.Publish(ctx, event, payload)
}

// restoreEmissions seeds the deduplicator from the journal so a restart
// does not re-emit plates still inside the dedup window.
func (d *Daemon) restoreEmissions(ctx context.Context) {
	if d.comps.Journal == nil {
		return
	}
	since := d.clock.Now().Add(-d.cfg.DedupWindow())
	recent, err := d.comps.Journal.RecentEmissions(ctx, d.cfg.Camera.ID, since)
	if err != nil {
		logging.WarnWithContext(d.logger, "restore recent emissions failed", "dedup_restore_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the journal database"),
			logging.String(logging.FieldImpact, "plates emitted just before restart may be emitted again"),
		)
		return
	}
	d.dedup.Seed(recent)
	if len(recent) > 0 {
		d.logger.Info("restored recent emissions", logging.Int("plates", len(recent)))
	}
}

func (d *Daemon) pruneJournal(ctx context.Context) {
	prune := func() {
		cutoff := d.clock.Now().AddDate(0, 0, -d.cfg.Journal.RetentionDays)
		removed, err := d.comps.Journal.Prune(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Warn("journal prune failed", logging.Error(err))
			}
			return
		}
		if removed > 0 {
			d.logger.Info("journal pruned", logging.Int("removed", int(removed)))
		}
	}
	prune()
	ticker := time.NewTicker(journalPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// RunID returns the identifier attached to this process's logs.
func (d *Daemon) RunID() string { return d.runID }

// Pipeline exposes the decision pipeline (tests and diagnostics).
func (d *Daemon) Pipeline() *pipeline.Pipeline { return d.pipeline }

// Status returns the current worker status.
func (d *Daemon) Status() api.WorkerStatus {
	d.mu.Lock()
	started := d.startedAt
	d.mu.Unlock()

	running := d.running.Load()
	status := api.WorkerStatus{
		Running:      running,
		PID:          os.Getpid(),
		CameraID:     d.cfg.Camera.ID,
		MountPath:    d.cfg.Camera.MountPath,
		Source:       source.Describe(d.cfg.Camera.SourceURL),
		RunID:        d.runID,
		StartedAt:    api.FormatTime(started),
		DryRun:       d.cfg.Events.DryRun,
		Scheduler:    d.scheduler.Stats(),
		Capture:      d.loop.Stats(),
		Frames:       d.pipeline.Stats(),
		Sightings:    d.tracker.Len(),
		RecentPlates: d.dedup.Len(),
		LockFilePath: d.lockPath,
	}
	if running && !started.IsZero() {
		status.UptimeSeconds = d.clock.Now().Sub(started).Seconds()
	}
	if event, ok := d.pipeline.LastEvent(); ok {
		status.LastEvent = &event
	}
	if d.comps.Journal != nil {
		status.JournalPath = d.comps.Journal.Path()
	}
	return status
}
