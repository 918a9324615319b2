package inference

import (
	"context"
	"image"
	"strings"

	"platewatch/internal/lpr"
)

// Recognizer calls an OCR service that answers POST {image_b64} with
// {text, confidence, char_confidences}.
type Recognizer struct {
	client
}

// NewRecognizer returns a recognizer adapter for endpoint.
func NewRecognizer(endpoint string, timeoutSeconds int, opts ...Option) *Recognizer {
	return &Recognizer{client: newClient("recognize", endpoint, timeoutSeconds, opts)}
}

type recognizeRequest struct {
	ImageB64 string `json:"image_b64"`
}

type recognizeResponse struct {
	Text            string    `json:"text"`
	Confidence      float64   `json:"confidence"`
	CharConfidences []float64 `json:"char_confidences"`
}

// Recognize reads the plate text in crop. The raw text is returned trimmed
// but otherwise untouched; confidences reported for pad characters are
// dropped so CharConfidences only covers real characters. When the service
// omits the overall confidence, the mean character confidence is used.
func (r *Recognizer) Recognize(ctx context.Context, crop image.Image) (lpr.Recognition, error) {
	encoded, err := encodeImage(crop)
	if err != nil {
		return lpr.Recognition{}, err
	}
	var resp recognizeResponse
	if err := r.post(ctx, recognizeRequest{ImageB64: encoded}, &resp); err != nil {
		return lpr.Recognition{}, err
	}
	confs := charScores(resp.Text, resp.CharConfidences)
	confidence := clamp01(resp.Confidence)
	if confidence == 0 && len(confs) > 0 {
		var sum float64
		for _, c := range confs {
			sum += c
		}
		confidence = sum / float64(len(confs))
	}
	return lpr.Recognition{
		Text:            strings.TrimSpace(resp.Text),
		Confidence:      confidence,
		CharConfidences: confs,
	}, nil
}

// charScores pairs confidences with the characters of text by position and
// keeps the clamped scores of non-pad characters.
func charScores(text string, confs []float64) []float64 {
	out := make([]float64, 0, len(confs))
	for i, r := range []rune(text) {
		if i >= len(confs) {
			break
		}
		if lpr.IsPadChar(r) {
			continue
		}
		out = append(out, clamp01(confs[i]))
	}
	return out
}
