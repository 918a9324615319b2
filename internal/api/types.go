package api

import (
	"time"

	"platewatch/internal/capture"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
	"platewatch/internal/pipeline"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// HealthResponse is served by /api/health.
type HealthResponse struct {
	Status   string `json:"status"`
	CameraID string `json:"cameraId"`
	RunID    string `json:"runId"`
}

// WorkerStatus aggregates worker runtime information.
type WorkerStatus struct {
	Running       bool                   `json:"running"`
	PID           int                    `json:"pid"`
	CameraID      string                 `json:"cameraId"`
	MountPath     string                 `json:"mountPath"`
	Source        string                 `json:"source"`
	RunID         string                 `json:"runId"`
	StartedAt     string                 `json:"startedAt,omitempty"`
	UptimeSeconds float64                `json:"uptimeSeconds"`
	DryRun        bool                   `json:"dryRun"`
	Scheduler     capture.SchedulerStats `json:"scheduler"`
	Capture       capture.LoopStats      `json:"capture"`
	Frames        pipeline.Stats         `json:"frames"`
	Sightings     int                    `json:"sightings"`
	RecentPlates  int                    `json:"recentPlates"`
	LastEvent     *lpr.Event             `json:"lastEvent,omitempty"`
	JournalPath   string                 `json:"journalPath,omitempty"`
	LockFilePath  string                 `json:"lockFilePath"`
}

// EventItem is one journaled emission.
type EventItem struct {
	ID             string  `json:"id"`
	CameraID       string  `json:"cameraId"`
	Plate          string  `json:"plate"`
	PlateRaw       string  `json:"plateRaw,omitempty"`
	DetConfidence  float64 `json:"detConfidence"`
	OCRConfidence  float64 `json:"ocrConfidence"`
	CombinedScore  float64 `json:"combinedScore"`
	HighConfidence bool    `json:"highConfidence"`
	ScorePath      string  `json:"scorePath,omitempty"`
	ConfirmedBy    string  `json:"confirmedBy,omitempty"`
	StatusCode     int     `json:"statusCode"`
	Delivered      bool    `json:"delivered"`
	DeliveryError  string  `json:"deliveryError,omitempty"`
	Throttled      bool    `json:"throttled"`
	FrameSeq       uint64  `json:"frameSeq"`
	DetectionPath  string  `json:"detectionPath,omitempty"`
	FullFramePath  string  `json:"fullFramePath,omitempty"`
	DecidedAt      string  `json:"decidedAt"`
}

// EventListResponse wraps journal entries for API responses.
type EventListResponse struct {
	Events []EventItem `json:"events"`
}

// LogStreamResponse wraps recent log events with the cursor for the next
// request.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FormatTime renders t in the API timestamp format; zero times render empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
