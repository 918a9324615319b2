package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"time"

	"platewatch/internal/annotate"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
	"platewatch/internal/quality"
	"platewatch/internal/sighting"
)

type emitInput struct {
	frame       lpr.Frame
	boxes       []lpr.Box
	det         lpr.Detection
	box         lpr.Box
	crop        image.Image
	recognition lpr.Recognition
	verdict     quality.Verdict
	confirmedBy sighting.Reason
	decidedAt   time.Time
	// release undoes the dedup claim for plates the backend never accepted.
	release func()
}

func (p *Pipeline) emit(ctx context.Context, in emitInput, report *FrameReport) {
	logger := logging.WithContext(ctx, p.logger)
	plate := in.verdict.Plate

	event := p.buildEvent(in)

	var cropJPEG []byte
	if p.opts.IncludeSnapshot || p.opts.Artifacts.Crops != nil {
		data, err := annotate.EncodeJPEG(in.crop, p.opts.Artifacts.JPEGQuality)
		if err != nil {
			report.addErr(fmt.Errorf("encode crop for %s: %w", plate, err))
		} else {
			cropJPEG = data
		}
	}
	if p.opts.IncludeSnapshot && len(cropJPEG) > 0 {
		event.Meta.SnapshotJPEGB64 = base64.StdEncoding.EncodeToString(cropJPEG)
	}

	if p.opts.Artifacts.Frames != nil {
		rendered := annotate.Frame(in.frame.Image, in.boxes, in.box, in.recognition.Text)
		location, err := p.storeImage(ctx, p.opts.Artifacts.Frames, categoryFrame, rendered)
		if err != nil {
			report.addErr(err)
		} else {
			event.FullFramePath = location
		}
	}

	score := p.opts.Scorer.Score(in.det.Confidence, in.recognition.Confidence)
	throttled := false
	if score.High {
		report.HighConfidence++
		if p.limiter.AllowN(p.clock.Now(), 1) {
			p.persistHigh(ctx, in, cropJPEG, &event, report)
		} else {
			throttled = true
			report.Throttled++
			logger.Debug("high confidence persistence throttled", logging.Args(append(
				logging.DecisionAttrs("persistence", "throttled", "min_event_interval"),
				logging.Plate(plate),
			)...)...)
		}
	}

	status, sendErr := p.opts.Sink.Send(ctx, event)
	if sendErr != nil {
		report.addErr(fmt.Errorf("send event for %s: %w", plate, sendErr))
		if in.release != nil {
			in.release()
		}
	}
	report.Emitted++
	report.Plates = append(report.Plates, plate)

	if p.opts.Recorder != nil {
		err := p.opts.Recorder.Record(ctx, Emission{
			Event:       event,
			ConfirmedBy: in.confirmedBy,
			Score:       score,
			StatusCode:  status,
			DeliveryErr: sendErr,
			Throttled:   throttled,
			FrameSeq:    in.frame.Seq,
			DecidedAt:   in.decidedAt,
		})
		if err != nil {
			report.addErr(fmt.Errorf("record event for %s: %w", plate, err))
		}
	}

	p.statsMu.Lock()
	stored := event
	stored.Meta.SnapshotJPEGB64 = ""
	p.lastEvent = &stored
	p.statsMu.Unlock()

	logger.Info("plate event emitted",
		logging.String(logging.FieldEventType, "plate_event"),
		logging.Plate(plate),
		logging.String("confirmed_by", string(in.confirmedBy)),
		logging.Float64("det_confidence", in.det.Confidence),
		logging.Float64("ocr_confidence", in.recognition.Confidence),
		logging.Bool("high_confidence", score.High),
		logging.String("score_path", string(score.Path)),
		logging.Int("status_code", status),
		logging.String("detection_path", event.DetectionPath),
	)
}

func (p *Pipeline) buildEvent(in emitInput) lpr.Event {
	stats := in.verdict.Stats
	confs := in.recognition.CharConfidences
	if confs == nil {
		confs = []float64{}
	}
	return lpr.Event{
		CameraID:      p.opts.CameraID,
		Plate:         in.verdict.Plate,
		PlateRaw:      in.recognition.Text,
		DetConfidence: in.det.Confidence,
		OCRConfidence: in.recognition.Confidence,
		MountPath:     p.opts.MountPath,
		Timestamp:     lpr.FormatTimestamp(in.decidedAt),
		Meta: lpr.EventMeta{
			BBox:            in.box.Slice(),
			CharConfidences: confs,
			CharConfMin:     stats.Min,
			CharConfMean:    stats.Mean,
			CharConfRatio:   stats.RatioAbove,
			ConfirmedBy:     string(in.confirmedBy),
		},
	}
}

// persistHigh writes the high-confidence crop, the annotated detection frame
// and its JSON sidecar.
func (p *Pipeline) persistHigh(ctx context.Context, in emitInput, cropJPEG []byte, event *lpr.Event, report *FrameReport) {
	if p.opts.Artifacts.Crops != nil && len(cropJPEG) > 0 {
		if _, err := p.opts.Artifacts.Crops.Store(ctx, cropJPEG, p.artifactName(categoryCropHigh)); err != nil {
			report.addErr(fmt.Errorf("store %s: %w", categoryCropHigh, err))
		}
	}

	store := p.opts.Artifacts.Detections
	if store == nil {
		return
	}
	label := annotate.DetectionLabel(in.verdict.Plate, in.det.Confidence, in.recognition.Confidence)
	rendered := annotate.Detection(in.frame.Image, in.box, label)
	name := p.artifactName(categoryDetection)
	data, err := annotate.EncodeJPEG(rendered, p.opts.Artifacts.JPEGQuality)
	if err != nil {
		report.addErr(fmt.Errorf("encode %s: %w", categoryDetection, err))
		return
	}
	location, err := store.Store(ctx, data, name)
	if err != nil {
		report.addErr(fmt.Errorf("store %s: %w", categoryDetection, err))
		return
	}
	event.DetectionPath = location

	sidecar := *event
	sidecar.Meta.SnapshotJPEGB64 = ""
	meta, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		report.addErr(fmt.Errorf("encode sidecar: %w", err))
		return
	}
	if _, err := store.Store(ctx, meta, name+".json"); err != nil {
		report.addErr(fmt.Errorf("store sidecar: %w", err))
	}
}
