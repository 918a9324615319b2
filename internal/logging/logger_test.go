package logging_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"platewatch/internal/config"
	"platewatch/internal/logging"
)

func TestConsoleLoggerFoldsSubjectIntoHeader(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithFrame(logging.WithCamera(context.Background(), "gate-north"), 42)
	component := logging.NewComponentLogger(logger, "pipeline")
	logging.WithContext(ctx, component).Info("event emitted",
		logging.Plate("ABC123"),
		logging.String("unlisted_key", "x"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "INFO [pipeline] gate-north · frame #42 - event emitted") {
		t.Fatalf("unexpected header: %q", text)
	}
	if !strings.Contains(text, "- plate: ABC123") {
		t.Fatalf("expected highlighted plate field: %q", text)
	}
	if !strings.Contains(text, "+ 1 more field hidden") {
		t.Fatalf("expected hidden field summary: %q", text)
	}
	if strings.Contains(text, ".go:") {
		t.Fatalf("expected no caller information at info level: %q", text)
	}
}

func TestConsoleLoggerDebugShowsAllFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("crop rejected", logging.String(logging.FieldReason, "border"), logging.Int("crop_w", 40))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "crop_w: 40") {
		t.Fatalf("expected every field at debug level: %q", content)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information at debug level: %q", content)
	}
}

func TestConsoleLoggerPrefixesGroupedFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "grouped.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.WithGroup("ocr").With(logging.String("engine", "remote")).Debug("read plate",
		logging.String("engine", "local"),
		logging.Int("chars", 6),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "ocr.engine: local") || strings.Contains(text, "ocr.engine: remote") {
		t.Fatalf("expected later value to replace earlier one: %q", text)
	}
	if !strings.Contains(text, "ocr.chars: 6") || strings.Contains(text, "ocr.ocr.") {
		t.Fatalf("unexpected group prefix: %q", text)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
		RunID:       "run-1",
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("sink retry", logging.Int("attempt", 2))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json line: %v (%q)", err, content)
	}
	if record["level"] != "warn" || record["msg"] != "sink retry" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record["run_id"] != "run-1" {
		t.Fatalf("expected run id on every record: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key: %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesJSONFileAndHub(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "debug"
	logPath := filepath.Join(t.TempDir(), "logs", "gate.log")
	hub := logging.NewStreamHub(4)

	logger, err := logging.NewFromConfig(&cfg, logPath, hub, "run-7")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.With(logging.String(logging.FieldComponent, "capture")).Info("source reconnected",
		logging.CameraID("gate"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"source reconnected"`) {
		t.Fatalf("expected JSON line in file: %q", content)
	}

	events, seq := hub.Tail(10)
	if seq != 1 || len(events) != 1 {
		t.Fatalf("expected one hub event, got %d (seq %d)", len(events), seq)
	}
	evt := events[0]
	if evt.Component != "capture" || evt.CameraID != "gate" {
		t.Fatalf("unexpected hub event: %+v", evt)
	}
	if evt.Fields[logging.FieldRunID] != "run-7" {
		t.Fatalf("expected run id in hub fields: %+v", evt.Fields)
	}
}

func TestStreamHubBoundsAndSince(t *testing.T) {
	hub := logging.NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(logging.LogEvent{Message: "m"})
	}
	tail, last := hub.Tail(0)
	if last != 5 || len(tail) != 3 || tail[0].Sequence != 3 {
		t.Fatalf("unexpected tail: last=%d events=%+v", last, tail)
	}
	since, _ := hub.Since(4, 10)
	if len(since) != 1 || since[0].Sequence != 5 {
		t.Fatalf("unexpected since result: %+v", since)
	}
}

func TestStreamHubWrapsRepeatedly(t *testing.T) {
	hub := logging.NewStreamHub(4)
	for i := 0; i < 11; i++ {
		hub.Publish(logging.LogEvent{Message: "frame"})
	}
	tail, last := hub.Tail(2)
	if last != 11 || len(tail) != 2 || tail[0].Sequence != 10 || tail[1].Sequence != 11 {
		t.Fatalf("unexpected tail after wrap: %+v", tail)
	}
	since, _ := hub.Since(2, 3)
	if len(since) != 3 || since[0].Sequence != 8 || since[2].Sequence != 10 {
		t.Fatalf("since should start at the oldest retained event: %+v", since)
	}
	if events, _ := hub.Since(11, 10); len(events) != 0 {
		t.Fatalf("expected nothing newer than the cursor, got %+v", events)
	}
}

func TestStreamHubFlattensGroups(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{filepath.Join(t.TempDir(), "out.log")},
		Hub:         hub,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.With(logging.FrameSeq(12)).WithGroup("ocr").Info("plate read",
		logging.Plate("ABC123"),
		logging.String("engine", "remote"),
	)

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	evt := events[0]
	if evt.FrameSeq != 12 {
		t.Fatalf("expected top-level frame seq, got %+v", evt)
	}
	if evt.Plate != "" || evt.Fields["ocr.plate"] != "ABC123" || evt.Fields["ocr.engine"] != "remote" {
		t.Fatalf("expected grouped fields to stay grouped: %+v", evt)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "gate-old.log")
	newPath := filepath.Join(dir, "gate-new.log")
	current := filepath.Join(dir, "gate-current.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{oldPath, newPath, current, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	now := time.Now()
	stale := now.AddDate(0, 0, -10)
	for _, p := range []string{oldPath, current, other} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, now, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "gate-*.log",
		Exclude: []string{current},
	})
	if removed != 1 {
		t.Fatalf("expected one file pruned, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed", oldPath)
	}
	for _, p := range []string{newPath, current, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
	if got := logging.CleanupOldLogs(nil, 0, now); got != 0 {
		t.Fatalf("zero retention should disable pruning, got %d", got)
	}
}

func TestCleanupOldLogsKeepsNewestFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	var paths []string
	for i := 0; i < 4; i++ {
		p := filepath.Join(dir, fmt.Sprintf("platewatch-gate-%d.log", i))
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		stale := now.AddDate(0, 0, -30-i)
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		paths = append(paths, p)
	}

	removed := logging.CleanupOldLogs(nil, 7, now, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "platewatch-gate-*.log",
		Keep:    2,
	})
	if removed != 2 {
		t.Fatalf("expected two files pruned, got %d", removed)
	}
	for i, p := range paths {
		_, err := os.Stat(p)
		if kept := err == nil; kept != (i < 2) {
			t.Fatalf("file %d kept=%v", i, kept)
		}
	}
}
