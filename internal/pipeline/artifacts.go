package pipeline

import (
	"context"
	"fmt"
	"image"

	"platewatch/internal/annotate"
	"platewatch/internal/quality"
)

// Artifact categories, used in file names.
const (
	categoryCropEdge    = "crop_edge"
	categoryCropBad     = "crop_bad"
	categoryCropLowQ    = "crop_lowq"
	categoryCropPending = "crop_pending"
	categoryCropHigh    = "crop_high"
	categoryFrame       = "frame"
	categoryDetection   = "det"
)

// rejectCategory maps a rejection to the crop category it is kept under.
// Size, ratio and empty-text rejections are not kept.
func rejectCategory(reason quality.Reason) (string, bool) {
	switch reason {
	case quality.ReasonBorder:
		return categoryCropEdge, true
	case quality.ReasonImplausible:
		return categoryCropBad, true
	case quality.ReasonLowQuality:
		return categoryCropLowQ, true
	default:
		return "", false
	}
}

// artifactName returns {camera}_{category}_{unix}.jpg.
func (p *Pipeline) artifactName(category string) string {
	return fmt.Sprintf("%s_%s_%d.jpg", p.opts.CameraID, category, p.clock.Now().Unix())
}

func (p *Pipeline) persistCrop(ctx context.Context, category string, crop image.Image) (string, error) {
	if p.opts.Artifacts.Crops == nil {
		return "", nil
	}
	return p.storeImage(ctx, p.opts.Artifacts.Crops, category, crop)
}

func (p *Pipeline) storeImage(ctx context.Context, store ArtifactStore, category string, img image.Image) (string, error) {
	data, err := annotate.EncodeJPEG(img, p.opts.Artifacts.JPEGQuality)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", category, err)
	}
	location, err := store.Store(ctx, data, p.artifactName(category))
	if err != nil {
		return "", fmt.Errorf("store %s: %w", category, err)
	}
	return location, nil
}
