// Package scoring blends detector and recognizer confidences and decides
// whether an emission is high confidence.
package scoring

import "platewatch/internal/config"

// Path names the rule that made a score high confidence.
type Path string

const (
	PathOCR      Path = "ocr"
	PathDetector Path = "detector"
	PathCombined Path = "combined"
	PathNone     Path = "none"
)

// Settings holds blend weights and thresholds.
type Settings struct {
	Alpha             float64
	OCRThreshold      float64
	DetThreshold      float64
	DetPathMinOCR     float64
	CombinedThreshold float64
}

// SettingsFromConfig extracts scorer settings from the worker configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := cfg.Scoring
	return Settings{
		Alpha:             s.Alpha,
		OCRThreshold:      s.OCRThreshold,
		DetThreshold:      s.DetThreshold,
		DetPathMinOCR:     s.DetPathMinOCR,
		CombinedThreshold: s.CombinedThreshold,
	}
}

// Score is the scorer output for one detection.
type Score struct {
	Combined float64 `json:"combined"`
	High     bool    `json:"high"`
	Path     Path    `json:"path"`
}

// Scorer is stateless.
type Scorer struct {
	settings Settings
}

// New returns a Scorer.
func New(settings Settings) Scorer {
	return Scorer{settings: settings}
}

// Combined returns alpha*ocr + (1-alpha)*det.
func (s Scorer) Combined(det, ocr float64) float64 {
	return s.settings.Alpha*ocr + (1-s.settings.Alpha)*det
}

// Score evaluates the three high-confidence paths in order.
func (s Scorer) Score(det, ocr float64) Score {
	combined := s.Combined(det, ocr)
	out := Score{Combined: combined, Path: PathNone}
	switch {
	case ocr >= s.settings.OCRThreshold:
		out.Path = PathOCR
	case det >= s.settings.DetThreshold && ocr >= s.settings.DetPathMinOCR:
		out.Path = PathDetector
	case combined >= s.settings.CombinedThreshold:
		out.Path = PathCombined
	}
	out.High = out.Path != PathNone
	return out
}

// IsHighConfidence reports Score(det, ocr).High.
func (s Scorer) IsHighConfidence(det, ocr float64) bool {
	return s.Score(det, ocr).High
}
