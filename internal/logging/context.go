package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one worker process run.
	FieldRunID = "run_id"
	// FieldCameraID is the structured logging key for the camera being watched.
	FieldCameraID = "camera_id"
	// FieldFrameSeq is the capture sequence number of the frame being decided.
	FieldFrameSeq = "frame_seq"
	// FieldPlate is the normalized plate string.
	FieldPlate = "plate"
	// FieldReason carries rejection and confirmation reason tags.
	FieldReason = "reason"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldDecisionType names the decision a log line explains.
	FieldDecisionType   = "decision_type"
	FieldDecisionResult = "decision_result"
	FieldDecisionReason = "decision_reason"
)

type contextKey int

const (
	cameraKey contextKey = iota
	frameKey
)

// WithCamera stores the camera id on ctx for ContextFields.
func WithCamera(ctx context.Context, cameraID string) context.Context {
	return context.WithValue(ctx, cameraKey, cameraID)
}

// WithFrame stores the frame sequence on ctx for ContextFields.
func WithFrame(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, frameKey, seq)
}

// FrameFromContext returns the frame sequence stored by WithFrame.
func FrameFromContext(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	seq, ok := ctx.Value(frameKey).(uint64)
	return seq, ok
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if camera, ok := ctx.Value(cameraKey).(string); ok && camera != "" {
		fields = append(fields, slog.String(FieldCameraID, camera))
	}
	if seq, ok := FrameFromContext(ctx); ok {
		fields = append(fields, slog.Uint64(FieldFrameSeq, seq))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
