package inference

import (
	"context"
	"image"

	"platewatch/internal/lpr"
)

// Detector calls a detection service that answers
// POST {image_b64, min_confidence} with {detections: [{x1, y1, x2, y2, confidence}]}.
type Detector struct {
	client
	minConfidence float64
}

// NewDetector returns a detector adapter for endpoint.
func NewDetector(endpoint string, minConfidence float64, timeoutSeconds int, opts ...Option) *Detector {
	return &Detector{
		client:        newClient("detect", endpoint, timeoutSeconds, opts),
		minConfidence: minConfidence,
	}
}

type detectRequest struct {
	ImageB64      string  `json:"image_b64"`
	MinConfidence float64 `json:"min_confidence"`
}

type detectResponse struct {
	Detections []struct {
		X1         float64 `json:"x1"`
		Y1         float64 `json:"y1"`
		X2         float64 `json:"x2"`
		Y2         float64 `json:"y2"`
		Confidence float64 `json:"confidence"`
	} `json:"detections"`
}

// Detect returns the plate boxes found in frame, in service order. Boxes
// below the minimum confidence are dropped even if the service returns them.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]lpr.Detection, error) {
	encoded, err := encodeImage(frame)
	if err != nil {
		return nil, err
	}
	var resp detectResponse
	if err := d.post(ctx, detectRequest{ImageB64: encoded, MinConfidence: d.minConfidence}, &resp); err != nil {
		return nil, err
	}
	origin := frame.Bounds().Min
	out := make([]lpr.Detection, 0, len(resp.Detections))
	for _, raw := range resp.Detections {
		conf := clamp01(raw.Confidence)
		if conf < d.minConfidence {
			continue
		}
		out = append(out, lpr.Detection{
			Box: lpr.Box{
				X1: int(raw.X1) - origin.X,
				Y1: int(raw.Y1) - origin.Y,
				X2: int(raw.X2) - origin.X,
				Y2: int(raw.Y2) - origin.Y,
			},
			Confidence: conf,
		})
	}
	return out, nil
}
