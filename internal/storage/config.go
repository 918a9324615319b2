package storage

import (
	"context"
	"log/slog"
	"time"

	"platewatch/internal/config"
)

// Store persists one named artifact and returns its location.
type Store interface {
	Store(ctx context.Context, data []byte, name string) (string, error)
}

// Set holds the configured stores per artifact kind. A nil store means the
// kind is disabled.
type Set struct {
	Crops      Store
	Frames     Store
	Detections Store
}

// FromConfig builds the artifact stores. When Cloudinary is enabled, frame
// and detection images (the ones referenced by event payloads) are mirrored
// to it; crops stay local.
func FromConfig(cfg *config.Config, logger *slog.Logger) (Set, error) {
	var remote Uploader
	if cfg.Cloudinary.Enabled {
		up, err := NewCloudinaryUploader(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			return Set{}, err
		}
		remote = up
	}
	return buildSet(cfg, remote, logger)
}

func buildSet(cfg *config.Config, remote Uploader, logger *slog.Logger) (Set, error) {
	var set Set
	var err error
	if set.Crops, err = openStore(cfg.Artifacts.CropsDir, nil, cfg, logger); err != nil {
		return Set{}, err
	}
	if set.Frames, err = openStore(cfg.Artifacts.FramesDir, remote, cfg, logger); err != nil {
		return Set{}, err
	}
	if set.Detections, err = openStore(cfg.Artifacts.DetectionsDir, remote, cfg, logger); err != nil {
		return Set{}, err
	}
	return set, nil
}

func openStore(dir string, remote Uploader, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if dir == "" {
		return nil, nil
	}
	local, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		return local, nil
	}
	return NewMirror(local, remote, MirrorOptions{
		Retries:     cfg.Cloudinary.UploadRetries,
		Backoff:     time.Duration(cfg.Cloudinary.RetryBackoff * float64(time.Second)),
		DeleteLocal: cfg.Cloudinary.DeleteLocal,
		Logger:      logger,
	}), nil
}
