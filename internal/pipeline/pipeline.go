// Package pipeline turns the detections of one frame into plate events.
//
// For each detection, in order, the pipeline clips the box, applies the
// geometry rules, recognizes the crop, runs the quality filter, consults the
// deduplicator and sighting tracker under one decision lock, and for
// confirmed plates builds a payload, persists debug artifacts and delivers
// the event. Collaborator failures are collected on the FrameReport; nothing
// escalates beyond the frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"platewatch/internal/clock"
	"platewatch/internal/dedup"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
	"platewatch/internal/quality"
	"platewatch/internal/scoring"
	"platewatch/internal/sighting"
)

// Detector finds plate boxes in a frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]lpr.Detection, error)
}

// Recognizer reads the text of a plate crop.
type Recognizer interface {
	Recognize(ctx context.Context, crop image.Image) (lpr.Recognition, error)
}

// ArtifactStore persists one named artifact and returns its location.
type ArtifactStore interface {
	Store(ctx context.Context, data []byte, name string) (string, error)
}

// EventSink delivers one event. The returned status is -1 when delivery
// failed without an HTTP response.
type EventSink interface {
	Send(ctx context.Context, event lpr.Event) (int, error)
}

// Recorder keeps a durable record of each emission.
type Recorder interface {
	Record(ctx context.Context, emission Emission) error
}

// Recorders fans an emission out to every recorder in order.
type Recorders []Recorder

// Record calls each recorder and joins their errors.
func (rs Recorders) Record(ctx context.Context, emission Emission) error {
	var errs []error
	for _, r := range rs {
		if err := r.Record(ctx, emission); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emission describes one delivered (or attempted) event.
type Emission struct {
	Event       lpr.Event
	ConfirmedBy sighting.Reason
	Score       scoring.Score
	StatusCode  int
	DeliveryErr error
	Throttled   bool
	FrameSeq    uint64
	DecidedAt   time.Time
}

// Artifacts groups the optional debug sinks. A nil store disables the
// categories written to it.
type Artifacts struct {
	Crops       ArtifactStore
	Frames      ArtifactStore
	Detections  ArtifactStore
	JPEGQuality int
}

// Options configures a Pipeline.
type Options struct {
	CameraID  string
	MountPath string

	Filter  *quality.Filter
	Tracker *sighting.Tracker
	Dedup   *dedup.Deduplicator
	Scorer  scoring.Scorer

	Detector   Detector
	Recognizer Recognizer
	Sink       EventSink
	Recorder   Recorder
	Artifacts  Artifacts

	// MinEventInterval spaces high-confidence persistence. Zero disables
	// throttling.
	MinEventInterval        time.Duration
	IncludeSnapshot         bool
	CountSuppressedSighting bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Pipeline is safe for concurrent use by several workers.
type Pipeline struct {
	opts    Options
	clock   clock.Clock
	logger  *slog.Logger
	limiter *rate.Limiter

	// decisionMu serializes suppress, observe and mark so two workers cannot
	// both emit the same plate.
	decisionMu sync.Mutex

	statsMu   sync.Mutex
	stats     Stats
	lastEvent *lpr.Event
}

// New validates options and constructs a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Filter == nil {
		return nil, errors.New("pipeline: quality filter is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("pipeline: sighting tracker is required")
	}
	if opts.Dedup == nil {
		return nil, errors.New("pipeline: deduplicator is required")
	}
	if opts.Recognizer == nil {
		return nil, errors.New("pipeline: recognizer is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("pipeline: event sink is required")
	}

	limit := rate.Inf
	if opts.MinEventInterval > 0 {
		limit = rate.Every(opts.MinEventInterval)
	}

	return &Pipeline{
		opts:    opts,
		clock:   clock.Or(opts.Clock),
		logger:  logging.NewComponentLogger(opts.Logger, "pipeline"),
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// ProcessFrame runs the detector on frame and then decides its detections.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame lpr.Frame) FrameReport {
	ctx = p.frameContext(ctx, frame)
	if p.opts.Detector == nil {
		report := newReport(frame.Seq)
		report.addErr(errors.New("pipeline: no detector configured"))
		p.finish(ctx, &report)
		return report
	}
	detections, err := p.opts.Detector.Detect(ctx, frame.Image)
	if err != nil {
		report := newReport(frame.Seq)
		report.addErr(fmt.Errorf("detect: %w", err))
		p.finish(ctx, &report)
		return report
	}
	return p.Process(ctx, frame, detections)
}

// Process decides every detection of frame in array order.
func (p *Pipeline) Process(ctx context.Context, frame lpr.Frame, detections []lpr.Detection) FrameReport {
	ctx = p.frameContext(ctx, frame)
	report := newReport(frame.Seq)
	report.Detections = len(detections)

	now := p.clock.Now()
	p.opts.Tracker.Expire(now)
	p.opts.Dedup.Expire(now)

	if frame.Image == nil {
		report.addErr(errors.New("frame has no image"))
		p.finish(ctx, &report)
		return report
	}

	fw, fh := frame.Width(), frame.Height()
	boxes := make([]lpr.Box, 0, len(detections))
	for _, det := range detections {
		if box, ok := det.Box.Clip(fw, fh); ok {
			boxes = append(boxes, box)
		}
	}

	for idx, det := range detections {
		if err := ctx.Err(); err != nil {
			report.addErr(err)
			break
		}
		p.decide(ctx, frame, boxes, idx, det, &report)
	}

	p.finish(ctx, &report)
	return report
}

func (p *Pipeline) decide(ctx context.Context, frame lpr.Frame, boxes []lpr.Box, idx int, det lpr.Detection, report *FrameReport) {
	logger := logging.WithContext(ctx, p.logger)
	fw, fh := frame.Width(), frame.Height()

	box, ok := det.Box.Clip(fw, fh)
	if !ok {
		report.Degenerate++
		logger.Debug("detection skipped", logging.Args(append(
			logging.DecisionAttrs("detection", "skipped", "degenerate_box"),
			logging.Int("index", idx),
		)...)...)
		return
	}

	crop := lpr.Crop(frame.Image, box)
	if reason := p.opts.Filter.CheckGeometry(box, fw, fh); reason != quality.ReasonNone {
		p.reject(ctx, report, reason, crop, idx)
		return
	}

	recognition, err := p.opts.Recognizer.Recognize(ctx, crop)
	if err != nil {
		report.addErr(fmt.Errorf("recognize detection %d: %w", idx, err))
		return
	}

	verdict := p.opts.Filter.Accept(quality.Input{
		Box:             box,
		FrameWidth:      fw,
		FrameHeight:     fh,
		Text:            recognition.Text,
		CharConfidences: recognition.CharConfidences,
	})
	if !verdict.Accepted {
		p.reject(ctx, report, verdict.Reason, crop, idx)
		return
	}
	plate := verdict.Plate

	decidedAt := p.clock.Now()
	confirmed, confirmedBy, suppressed, release := p.gate(plate, decidedAt)
	if suppressed {
		report.Suppressed++
		logger.Debug("plate suppressed", logging.Args(append(
			logging.DecisionAttrs("dedup", "suppressed", "recent_emission"),
			logging.Plate(plate),
		)...)...)
		return
	}
	if !confirmed {
		report.Pending++
		if _, err := p.persistCrop(ctx, categoryCropPending, crop); err != nil {
			report.addErr(err)
		}
		logger.Debug("plate pending confirmation", logging.Args(append(
			logging.DecisionAttrs("confirmation", "pending", string(confirmedBy)),
			logging.Plate(plate),
		)...)...)
		return
	}

	p.emit(ctx, emitInput{
		frame:       frame,
		boxes:       boxes,
		det:         det,
		box:         box,
		crop:        crop,
		recognition: recognition,
		verdict:     verdict,
		confirmedBy: confirmedBy,
		decidedAt:   decidedAt,
		release:     release,
	}, report)
}

// gate runs suppress, observe and mark as one atomic step. A confirmed
// plate is claimed before the lock is released so no other worker emits it;
// release undoes the claim when delivery fails.
func (p *Pipeline) gate(plate string, now time.Time) (confirmed bool, reason sighting.Reason, suppressed bool, release func()) {
	p.decisionMu.Lock()
	defer p.decisionMu.Unlock()

	if p.opts.Dedup.ShouldSuppress(plate, now) {
		if p.opts.CountSuppressedSighting {
			p.opts.Tracker.Observe(plate)
		}
		return false, "", true, nil
	}
	confirmed, reason = p.opts.Tracker.Observe(plate)
	if confirmed {
		release = p.opts.Dedup.Claim(plate, now)
	}
	return confirmed, reason, false, release
}

func (p *Pipeline) reject(ctx context.Context, report *FrameReport, reason quality.Reason, crop image.Image, idx int) {
	report.Rejected[reason]++
	logging.WithContext(ctx, p.logger).Debug("detection rejected", logging.Args(append(
		logging.DecisionAttrs("quality", "rejected", string(reason)),
		logging.String(logging.FieldReason, string(reason)),
		logging.Int("index", idx),
	)...)...)
	category, ok := rejectCategory(reason)
	if !ok {
		return
	}
	if _, err := p.persistCrop(ctx, category, crop); err != nil {
		report.addErr(err)
	}
}

func (p *Pipeline) finish(ctx context.Context, report *FrameReport) {
	p.statsMu.Lock()
	p.stats.Frames++
	p.stats.Detections += uint64(report.Detections)
	p.stats.Rejected += uint64(report.RejectedTotal())
	p.stats.Pending += uint64(report.Pending)
	p.stats.Suppressed += uint64(report.Suppressed)
	p.stats.Emitted += uint64(report.Emitted)
	p.stats.HighConfidence += uint64(report.HighConfidence)
	p.stats.Throttled += uint64(report.Throttled)
	p.stats.Errors += uint64(len(report.Errors))
	p.stats.LastFrameAt = p.clock.Now()
	p.statsMu.Unlock()

	logger := logging.WithContext(ctx, p.logger)
	attrs := report.attrs()
	if err := report.Err(); err != nil {
		attrs = append(attrs,
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check detector, recognizer, storage and backend connectivity"),
			logging.String(logging.FieldImpact, "affected detections were skipped"),
		)
		logging.WarnWithContext(logger, "frame processed with errors", "frame_errors", attrs...)
		return
	}
	if report.Emitted > 0 {
		logger.Info("frame processed", logging.Args(attrs...)...)
		return
	}
	logger.Debug("frame processed", logging.Args(attrs...)...)
}

func (p *Pipeline) frameContext(ctx context.Context, frame lpr.Frame) context.Context {
	if seq, ok := logging.FrameFromContext(ctx); ok && seq == frame.Seq {
		return ctx
	}
	return logging.WithFrame(logging.WithCamera(ctx, p.opts.CameraID), frame.Seq)
}

// Stats returns cumulative counters since construction.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// LastEvent returns the most recent emitted event, if any.
func (p *Pipeline) LastEvent() (lpr.Event, bool) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	if p.lastEvent == nil {
		return lpr.Event{}, false
	}
	return *p.lastEvent, true
}

// Stats aggregates FrameReports.
type Stats struct {
	Frames         uint64    `json:"frames"`
	Detections     uint64    `json:"detections"`
	Rejected       uint64    `json:"rejected"`
	Pending        uint64    `json:"pending"`
	Suppressed     uint64    `json:"suppressed"`
	Emitted        uint64    `json:"emitted"`
	HighConfidence uint64    `json:"high_confidence"`
	Throttled      uint64    `json:"throttled"`
	Errors         uint64    `json:"errors"`
	LastFrameAt    time.Time `json:"last_frame_at"`
}
