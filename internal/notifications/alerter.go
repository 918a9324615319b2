package notifications

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"platewatch/internal/clock"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
	"platewatch/internal/pipeline"
)

const defaultFailureInterval = time.Minute

// AlerterOptions configures an Alerter.
type AlerterOptions struct {
	// Watchlist restricts plate alerts to these plates when non-empty.
	Watchlist          []string
	HighConfidenceOnly bool
	DeliveryFailures   bool
	// FailureInterval spaces delivery-failure alerts so a backend outage
	// does not page once per plate.
	FailureInterval time.Duration
	Clock           clock.Clock
	Logger          *slog.Logger
}

// Alerter publishes notifications for pipeline emissions. It satisfies
// pipeline.Recorder and never fails the emission it observes.
type Alerter struct {
	svc      Service
	opts     AlerterOptions
	watch    map[string]struct{}
	failures *rate.Limiter
	clock    clock.Clock
	logger   *slog.Logger
}

// NewAlerter wraps svc.
func NewAlerter(svc Service, opts AlerterOptions) *Alerter {
	if svc == nil {
		svc = noopService{}
	}
	interval := opts.FailureInterval
	if interval <= 0 {
		interval = defaultFailureInterval
	}
	watch := make(map[string]struct{}, len(opts.Watchlist))
	for _, plate := range opts.Watchlist {
		if normalized := lpr.NormalizePlate(plate); normalized != "" {
			watch[normalized] = struct{}{}
		}
	}
	return &Alerter{
		svc:      svc,
		opts:     opts,
		watch:    watch,
		failures: rate.NewLimiter(rate.Every(interval), 1),
		clock:    clock.Or(opts.Clock),
		logger:   logging.NewComponentLogger(opts.Logger, "notifications"),
	}
}

// Record implements pipeline.Recorder.
func (a *Alerter) Record(ctx context.Context, emission pipeline.Emission) error {
	event := emission.Event
	payload := Payload{
		"plate":    event.Plate,
		"cameraId": event.CameraID,
		"det":      event.DetConfidence,
		"ocr":      event.OCRConfidence,
	}

	if emission.DeliveryErr != nil && a.opts.DeliveryFailures && a.failures.AllowN(a.clock.Now(), 1) {
		failure := Payload{"error": emission.DeliveryErr.Error()}
		for k, v := range payload {
			failure[k] = v
		}
		a.publish(ctx, EventDeliveryFailed, failure)
	}

	if len(a.watch) > 0 {
		if _, ok := a.watch[event.Plate]; ok {
			a.publish(ctx, EventWatchlistHit, payload)
		}
		return nil
	}
	if a.opts.HighConfidenceOnly && !emission.Score.High {
		return nil
	}
	a.publish(ctx, EventPlateAlert, payload)
	return nil
}

// Publish forwards a worker-level event.
func (a *Alerter) Publish(ctx context.Context, event Event, payload Payload) {
	a.publish(ctx, event, payload)
}

func (a *Alerter) publish(ctx context.Context, event Event, payload Payload) {
	if err := a.svc.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(a.logger, "notification failed", "notification_failed",
			logging.String("notification", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
		)
	}
}
