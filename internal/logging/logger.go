package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"platewatch/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// OutputPaths lists "stdout", "stderr" or file paths. Empty means stdout.
	OutputPaths []string
	// AddSource forces source locations; debug level always adds them.
	AddSource bool
	// RunID is attached to every record when set.
	RunID string
	// Hub receives a copy of every record when set.
	Hub *StreamHub
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	w, err := openWriters(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	handler, err := formatHandler(opts.Format, w, level, opts.AddSource || level <= slog.LevelDebug)
	if err != nil {
		return nil, err
	}
	return slog.New(decorate(handler, opts.Hub, opts.RunID)), nil
}

// NewFromConfig builds the daemon logger. Console output follows
// logging.format; when logPath is set every record is also appended to that
// file as JSON lines for the logs API and later inspection.
func NewFromConfig(cfg *config.Config, logPath string, hub *StreamHub, runID string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Hub: hub, RunID: runID})
	}
	level := parseLevel(cfg.Logging.Level)
	debug := level <= slog.LevelDebug

	handler, err := formatHandler(cfg.Logging.Format, os.Stdout, level, debug)
	if err != nil {
		return nil, err
	}
	if logPath = strings.TrimSpace(logPath); logPath != "" {
		file, err := openLogFile(logPath)
		if err != nil {
			return nil, err
		}
		handler = TeeHandler(handler, newJSONHandler(file, level, debug))
	}
	return slog.New(decorate(handler, hub, runID)), nil
}

func formatHandler(format string, w io.Writer, level slog.Leveler, addSource bool) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return newPrettyHandler(w, level, addSource), nil
	case "json":
		return newJSONHandler(w, level, addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

// decorate wraps the output handler with the hub mirror and run id. The run
// id wrapper is outermost so hub events carry it too.
func decorate(handler slog.Handler, hub *StreamHub, runID string) slog.Handler {
	if hub != nil {
		handler = newStreamHandler(handler, hub)
	}
	if id := strings.TrimSpace(runID); id != "" {
		handler = newRunIDHandler(handler, id)
	}
	return handler
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string) (io.Writer, error) {
	seen := make(map[string]bool, len(paths))
	var writers []io.Writer
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		switch path {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			file, err := openLogFile(path)
			if err != nil {
				return nil, err
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
