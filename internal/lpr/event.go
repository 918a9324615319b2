package lpr

import "time"

// TimestampLayout is the backend timestamp format (UTC, second precision).
const TimestampLayout = "2006-01-02T15:04:05Z"

// Event is the payload delivered to the backend for one confirmed plate.
type Event struct {
	CameraID      string    `json:"cameraId"`
	Plate         string    `json:"plate"`
	PlateRaw      string    `json:"plate_raw"`
	DetConfidence float64   `json:"det_confidence"`
	OCRConfidence float64   `json:"ocr_confidence"`
	MountPath     string    `json:"mountPath"`
	Timestamp     string    `json:"timestamp"`
	Meta          EventMeta `json:"meta"`
	DetectionPath string    `json:"detection_path,omitempty"`
	FullFramePath string    `json:"full_frame_path,omitempty"`
}

// EventMeta carries quality metrics and optional snapshot data.
type EventMeta struct {
	BBox            []int     `json:"bbox"`
	CharConfidences []float64 `json:"char_confidences"`
	CharConfMin     float64   `json:"char_conf_min"`
	CharConfMean    float64   `json:"char_conf_mean"`
	CharConfRatio   float64   `json:"char_conf_ratio"`
	ConfirmedBy     string    `json:"confirmed_by,omitempty"`
	SnapshotJPEGB64 string    `json:"snapshot_jpeg_b64,omitempty"`
}

// FormatTimestamp renders t in the backend timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
