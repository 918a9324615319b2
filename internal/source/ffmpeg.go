package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"platewatch/internal/logging"
	"platewatch/internal/lpr"
)

const (
	maxFrameBytes  = 16 << 20
	stderrTailSize = 4 << 10
)

// FFmpegOptions configures an FFmpegSource.
type FFmpegOptions struct {
	Binary    string
	URL       string
	Transport string
	FrameRate int
	Logger    *slog.Logger
}

// FFmpegSource decodes a camera stream with an ffmpeg child process writing
// MJPEG to stdout.
type FFmpegSource struct {
	opts   FFmpegOptions
	logger *slog.Logger

	mu     sync.Mutex
	proc   *ffmpegProcess
	closed bool
}

type ffmpegProcess struct {
	cancel context.CancelFunc
	frames chan []byte
	done   chan struct{}
	err    error
}

// NewFFmpegSource returns a source that starts ffmpeg on first read.
func NewFFmpegSource(opts FFmpegOptions) *FFmpegSource {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	return &FFmpegSource{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "source").With(logging.String("source", Describe(opts.URL))),
	}
}

func (s *FFmpegSource) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	switch {
	case strings.HasPrefix(s.opts.URL, "rtsp://") || strings.HasPrefix(s.opts.URL, "rtsps://"):
		if t := strings.TrimSpace(s.opts.Transport); t != "" {
			args = append(args, "-rtsp_transport", t)
		}
	case strings.HasPrefix(s.opts.URL, "/dev/video"):
		args = append(args, "-f", "v4l2")
	}
	args = append(args, "-i", s.opts.URL, "-f", "image2pipe", "-vcodec", "mjpeg")
	if s.opts.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(s.opts.FrameRate))
	}
	return append(args, "-q:v", "3", "-")
}

// ReadFrame returns the newest decoded frame, waiting for one if needed.
func (s *FFmpegSource) ReadFrame(ctx context.Context) (lpr.Frame, error) {
	proc, err := s.current()
	if err != nil {
		return lpr.Frame{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return lpr.Frame{}, ctx.Err()
		case data := <-proc.frames:
			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				s.logger.Debug("skipping undecodable frame", logging.Error(err), logging.Int("bytes", len(data)))
				continue
			}
			return lpr.Frame{Image: img, CapturedAt: time.Now()}, nil
		case <-proc.done:
			select {
			case data := <-proc.frames:
				if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
					return lpr.Frame{Image: img, CapturedAt: time.Now()}, nil
				}
			default:
			}
			if proc.err != nil {
				return lpr.Frame{}, proc.err
			}
			return lpr.Frame{}, io.EOF
		}
	}
}

// Reconnect restarts ffmpeg.
func (s *FFmpegSource) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.stopLocked()
	proc, err := s.start()
	if err != nil {
		return err
	}
	s.proc = proc
	return nil
}

// Close stops ffmpeg. Further reads return ErrClosed.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
	return nil
}

func (s *FFmpegSource) current() (*ffmpegProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.proc == nil {
		proc, err := s.start()
		if err != nil {
			return nil, err
		}
		s.proc = proc
	}
	return s.proc, nil
}

func (s *FFmpegSource) stopLocked() {
	if s.proc == nil {
		return
	}
	s.proc.cancel()
	<-s.proc.done
	s.proc = nil
}

func (s *FFmpegSource) start() (*ffmpegProcess, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.opts.Binary, s.args()...)
	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	s.logger.Info("ffmpeg started",
		logging.String(logging.FieldEventType, "source_started"),
		logging.Int("pid", cmd.Process.Pid),
	)

	proc := &ffmpegProcess{
		cancel: cancel,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(proc.done)
		readErr := pumpFrames(bufio.NewReaderSize(stdout, 64<<10), proc.frames)
		waitErr := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			proc.err = ErrClosed
		case waitErr != nil:
			proc.err = fmt.Errorf("ffmpeg exited: %w: %s", waitErr, stderr.String())
		case readErr != nil && !errors.Is(readErr, io.EOF):
			proc.err = fmt.Errorf("read ffmpeg output: %w", readErr)
		}
	}()
	return proc, nil
}

// pumpFrames splits r into JPEG images and keeps only the newest unread one
// in out.
func pumpFrames(r *bufio.Reader, out chan []byte) error {
	for {
		data, err := nextJPEG(r)
		if err != nil {
			return err
		}
		select {
		case out <- data:
		default:
			select {
			case <-out:
			default:
			}
			out <- data
		}
	}
}

// nextJPEG returns the bytes from the next SOI marker (FF D8) through the
// following EOI marker (FF D9).
func nextJPEG(r *bufio.Reader) ([]byte, error) {
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	buf := make([]byte, 0, 256<<10)
	buf = append(buf, 0xFF, 0xD8)
	prev = 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		buf = append(buf, b)
		if prev == 0xFF && b == 0xD9 {
			return buf, nil
		}
		if len(buf) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", maxFrameBytes)
		}
		prev = b
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
