package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"platewatch/internal/fileutil"
	"platewatch/internal/logging"
)

// MirrorOptions configures a Mirror.
type MirrorOptions struct {
	// Retries is the number of upload attempts; values below 1 mean one.
	Retries int
	// Backoff is the delay before the second attempt; it doubles after
	// each failure.
	Backoff time.Duration
	// DeleteLocal removes the local file after a successful upload.
	DeleteLocal bool
	Sleeper     func(time.Duration)
	Logger      *slog.Logger
}

// Mirror writes each artifact locally and then uploads it. Upload failures
// are logged and the local path is returned, so a remote outage never loses
// an artifact.
type Mirror struct {
	local  *FileStore
	remote Uploader
	opts   MirrorOptions
	logger *slog.Logger
}

// NewMirror wraps local with an uploader.
func NewMirror(local *FileStore, remote Uploader, opts MirrorOptions) *Mirror {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Mirror{
		local:  local,
		remote: remote,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "storage"),
	}
}

// Store writes data locally and returns the remote URL when the upload
// succeeds, otherwise the local path.
func (m *Mirror) Store(ctx context.Context, data []byte, name string) (string, error) {
	path, err := m.local.Store(ctx, data, name)
	if err != nil {
		return "", err
	}
	if m.remote == nil {
		return path, nil
	}

	url, err := m.upload(ctx, path)
	logger := logging.WithContext(ctx, m.logger)
	if err != nil {
		logging.WarnWithContext(logger, "artifact upload failed; keeping local copy", "artifact_upload_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check cloudinary credentials and connectivity"),
			logging.String(logging.FieldImpact, "artifact is only available locally"),
		)
		return path, nil
	}
	if m.opts.DeleteLocal {
		if err := fileutil.RemoveIfExists(path); err != nil {
			logger.Debug("remove uploaded artifact", logging.String("path", path), logging.Error(err))
		}
	}
	logger.Debug("artifact uploaded", logging.String("path", path), logging.String("url", url))
	return url, nil
}

func (m *Mirror) upload(ctx context.Context, path string) (string, error) {
	delay := m.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= m.opts.Retries; attempt++ {
		url, err := m.remote.Upload(ctx, path)
		if err == nil {
			return url, nil
		}
		lastErr = err
		if attempt == m.opts.Retries {
			break
		}
		if err := m.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
	return "", fmt.Errorf("upload failed after %d attempts: %w", m.opts.Retries, lastErr)
}

func (m *Mirror) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if m.opts.Sleeper != nil {
		m.opts.Sleeper(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
