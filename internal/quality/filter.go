// Package quality decides whether a detected crop and its recognized text can
// plausibly be a license plate. The filter is pure: identical inputs always
// yield the same verdict, and it never touches sighting or emission state.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"platewatch/internal/config"
	"platewatch/internal/lpr"
)

// Reason tags why a crop was rejected.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonSize        Reason = "size"
	ReasonRatio       Reason = "ratio"
	ReasonBorder      Reason = "border"
	ReasonEmptyText   Reason = "empty_text"
	ReasonImplausible Reason = "implausible"
	ReasonLowQuality  Reason = "low_quality"
)

// Reasons lists every rejection reason in rule order.
var Reasons = []Reason{ReasonSize, ReasonRatio, ReasonBorder, ReasonEmptyText, ReasonImplausible, ReasonLowQuality}

// borderMargin is the distance from a frame edge, in pixels, at which a box
// counts as touching the border.
const borderMargin = 1

// Settings holds the filter thresholds.
type Settings struct {
	MinCropWidth           int
	MinCropHeight          int
	MinCropArea            int
	MinCropRatio           float64
	MaxCropRatio           float64
	SaveOnlyOnPlate        bool
	PlatePattern           string
	MinCharConfidence      float64
	MinCharConfidenceRatio float64
	RequireCharConfidences bool
}

// SettingsFromConfig extracts filter settings from the worker configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	q := cfg.Quality
	return Settings{
		MinCropWidth:           q.MinCropWidth,
		MinCropHeight:          q.MinCropHeight,
		MinCropArea:            q.MinCropArea,
		MinCropRatio:           q.MinCropRatio,
		MaxCropRatio:           q.MaxCropRatio,
		SaveOnlyOnPlate:        q.SaveOnlyOnPlate,
		PlatePattern:           q.PlateRegex,
		MinCharConfidence:      q.MinCharConfidence,
		MinCharConfidenceRatio: q.MinCharConfidenceRatio,
		RequireCharConfidences: q.RequireCharConfidences,
	}
}

// Input describes one clipped detection and its recognition.
type Input struct {
	Box             lpr.Box
	FrameWidth      int
	FrameHeight     int
	Text            string
	CharConfidences []float64
}

// Verdict is the filter outcome. Plate and Stats are filled whenever the
// text rules were reached.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Plate    string
	Stats    CharStats
}

// Filter applies the plausibility rules in order; the first failing rule wins.
type Filter struct {
	settings Settings
	plate    *regexp.Regexp
}

// New compiles the plate pattern and returns a Filter.
func New(settings Settings) (*Filter, error) {
	pattern, err := regexp.Compile(settings.PlatePattern)
	if err != nil {
		return nil, fmt.Errorf("compile plate pattern: %w", err)
	}
	return &Filter{settings: settings, plate: pattern}, nil
}

// Settings returns the thresholds the filter was built with.
func (f *Filter) Settings() Settings {
	return f.settings
}

// CheckGeometry evaluates the size, ratio and border rules only. It lets the
// caller skip recognition for crops that would be rejected anyway.
func (f *Filter) CheckGeometry(box lpr.Box, frameW, frameH int) Reason {
	w, h := box.Width(), box.Height()
	if w < f.settings.MinCropWidth || h < f.settings.MinCropHeight || w*h < f.settings.MinCropArea {
		return ReasonSize
	}
	ratio := float64(w) / float64(max(1, h))
	if ratio < f.settings.MinCropRatio || ratio > f.settings.MaxCropRatio {
		return ReasonRatio
	}
	if box.X1 <= borderMargin || box.Y1 <= borderMargin ||
		box.X2 >= frameW-1-borderMargin || box.Y2 >= frameH-1-borderMargin {
		return ReasonBorder
	}
	return ReasonNone
}

// Accept runs every rule in order.
func (f *Filter) Accept(in Input) Verdict {
	if reason := f.CheckGeometry(in.Box, in.FrameWidth, in.FrameHeight); reason != ReasonNone {
		return Verdict{Reason: reason}
	}

	plate := lpr.NormalizePlate(in.Text)
	stats := ComputeCharStats(in.CharConfidences, f.settings.MinCharConfidence)
	verdict := Verdict{Plate: plate, Stats: stats}

	// Empty means whitespace-only raw text; pad characters fall to the regex.
	if f.settings.SaveOnlyOnPlate && strings.TrimSpace(in.Text) == "" {
		verdict.Reason = ReasonEmptyText
		return verdict
	}
	if !f.plate.MatchString(plate) {
		verdict.Reason = ReasonImplausible
		return verdict
	}
	if stats.NumChars > 0 {
		if stats.RatioAbove < f.settings.MinCharConfidenceRatio {
			verdict.Reason = ReasonLowQuality
			return verdict
		}
	} else if f.settings.RequireCharConfidences {
		verdict.Reason = ReasonLowQuality
		return verdict
	}

	verdict.Accepted = true
	return verdict
}
