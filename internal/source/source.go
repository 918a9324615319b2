// Package source provides the frame sources the capture loop reads from: an
// ffmpeg MJPEG pipe for camera streams and a directory replay source for
// offline runs.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"platewatch/internal/config"
	"platewatch/internal/deps"
	"platewatch/internal/lpr"
)

// ErrClosed is returned by ReadFrame after Close.
var ErrClosed = errors.New("source closed")

// DirScheme prefixes directory replay sources.
const DirScheme = "dir://"

// Source yields decoded frames. Reconnect discards any broken state and
// reopens the underlying stream.
type Source interface {
	ReadFrame(ctx context.Context) (lpr.Frame, error)
	Reconnect(ctx context.Context) error
	Close() error
}

// Open selects a source implementation for the configured camera url.
func Open(cfg *config.Config, logger *slog.Logger) (Source, error) {
	url := strings.TrimSpace(cfg.Camera.SourceURL)
	if url == "" {
		return nil, errors.New("camera source_url is empty")
	}
	if dir, ok := strings.CutPrefix(url, DirScheme); ok {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return nil, err
		}
		return NewDirSource(expanded, DirOptions{
			FrameRate: cfg.Capture.FrameRate,
			Loop:      cfg.Capture.LoopReplay,
			Logger:    logger,
		})
	}

	status := deps.ResolveFFmpeg(cfg.FFmpegBinary())
	if !status.Available {
		return nil, fmt.Errorf("ffmpeg unavailable: %s", status.Detail)
	}
	return NewFFmpegSource(FFmpegOptions{
		Binary:    status.Command,
		URL:       url,
		Transport: cfg.Capture.RTSPTransport,
		FrameRate: cfg.Capture.FrameRate,
		Logger:    logger,
	}), nil
}

// Describe returns a loggable form of url with credentials removed.
func Describe(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		slash := strings.Index(rest, "/")
		if slash < 0 || at < slash {
			rest = "***@" + rest[at+1:]
		}
	}
	return scheme + "://" + rest
}
