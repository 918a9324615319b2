package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"platewatch/internal/logging"
	"platewatch/internal/lpr"
)

// DirOptions configures a DirSource.
type DirOptions struct {
	// FrameRate paces reads; zero reads as fast as the caller asks.
	FrameRate int
	// Loop restarts from the first image after the last one.
	Loop   bool
	Logger *slog.Logger
}

// DirSource replays the images in a directory in name order. Without Loop it
// behaves like a watch folder: Reconnect rescans and picks up new files.
type DirSource struct {
	dir    string
	opts   DirOptions
	logger *slog.Logger

	mu       sync.Mutex
	files    []string
	next     int
	seen     map[string]struct{}
	lastRead time.Time
	closed   bool
}

// NewDirSource scans dir and returns a replay source.
func NewDirSource(dir string, opts DirOptions) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("replay directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("replay source %q is not a directory", dir)
	}
	s := &DirSource{
		dir:    dir,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "source").With(logging.String("source", DirScheme+dir)),
		seen:   make(map[string]struct{}),
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DirSource) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read replay directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isImageName(entry.Name()) {
			continue
		}
		if _, ok := s.seen[entry.Name()]; ok {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	s.files = files
	s.next = 0
	return nil
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

// ReadFrame decodes the next image. It returns io.EOF when the directory is
// exhausted and Loop is off.
func (s *DirSource) ReadFrame(ctx context.Context) (lpr.Frame, error) {
	if err := s.pace(ctx); err != nil {
		return lpr.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lpr.Frame{}, ErrClosed
	}
	for {
		if s.next >= len(s.files) {
			if !s.opts.Loop || len(s.seen) == 0 {
				return lpr.Frame{}, io.EOF
			}
			s.seen = make(map[string]struct{})
			if err := s.scan(); err != nil {
				return lpr.Frame{}, err
			}
			if len(s.files) == 0 {
				return lpr.Frame{}, io.EOF
			}
		}
		name := s.files[s.next]
		s.next++
		s.seen[name] = struct{}{}

		img, err := decodeFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Debug("skipping unreadable image", logging.String("path", name), logging.Error(err))
			continue
		}
		s.lastRead = time.Now()
		return lpr.Frame{Image: img, CapturedAt: s.lastRead}, nil
	}
}

func (s *DirSource) pace(ctx context.Context) error {
	if s.opts.FrameRate <= 0 {
		return ctx.Err()
	}
	s.mu.Lock()
	last := s.lastRead
	s.mu.Unlock()
	if last.IsZero() {
		return ctx.Err()
	}
	wait := time.Second/time.Duration(s.opts.FrameRate) - time.Since(last)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Reconnect rescans the directory for images not yet replayed.
func (s *DirSource) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.scan()
}

// Close ends the replay.
func (s *DirSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
