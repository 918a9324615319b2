package pipeline

import (
	"errors"
	"sort"

	"platewatch/internal/logging"
	"platewatch/internal/quality"
)

// FrameReport summarizes the decisions made for one frame.
type FrameReport struct {
	Seq            uint64
	Detections     int
	Degenerate     int
	Rejected       map[quality.Reason]int
	Pending        int
	Suppressed     int
	Emitted        int
	HighConfidence int
	Throttled      int
	Plates         []string
	Errors         []error
}

func newReport(seq uint64) FrameReport {
	return FrameReport{Seq: seq, Rejected: make(map[quality.Reason]int)}
}

func (r *FrameReport) addErr(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// Err joins every collaborator error seen while processing the frame.
func (r FrameReport) Err() error {
	return errors.Join(r.Errors...)
}

// RejectedTotal sums rejections across reasons.
func (r FrameReport) RejectedTotal() int {
	total := 0
	for _, n := range r.Rejected {
		total += n
	}
	return total
}

func (r FrameReport) attrs() []logging.Attr {
	attrs := []logging.Attr{
		logging.Int("detections", r.Detections),
		logging.Int("emitted", r.Emitted),
		logging.Int("suppressed", r.Suppressed),
		logging.Int("pending", r.Pending),
		logging.Int("rejected", r.RejectedTotal()),
	}
	if r.HighConfidence > 0 {
		attrs = append(attrs, logging.Int("high_confidence", r.HighConfidence))
	}
	if r.Throttled > 0 {
		attrs = append(attrs, logging.Int("throttled", r.Throttled))
	}
	if r.Degenerate > 0 {
		attrs = append(attrs, logging.Int("degenerate", r.Degenerate))
	}
	reasons := make([]string, 0, len(r.Rejected))
	for reason := range r.Rejected {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		attrs = append(attrs, logging.Int("rejected_"+reason, r.Rejected[quality.Reason(reason)]))
	}
	if len(r.Plates) > 0 {
		attrs = append(attrs, logging.Any("plates", r.Plates))
	}
	if len(r.Errors) > 0 {
		attrs = append(attrs, logging.Int("errors", len(r.Errors)))
	}
	return attrs
}
