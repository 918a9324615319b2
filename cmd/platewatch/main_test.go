package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"platewatch/internal/api"
	"platewatch/internal/config"
	"platewatch/internal/journal"
	"platewatch/internal/logging"
	"platewatch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, env.configPath) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "platewatch.toml")
	if out, err := env.run(t, "config", "init", "--path", target); err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample at %s: %v", target, err)
	}
	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Events.Token = "super-secret"
	writeTestConfig(t, env.configPath, env.cfg)

	out, err := env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret") || !strings.Contains(out, "<redacted>") {
		t.Fatalf("secret not redacted:\n%s", out)
	}
}

func TestFlagOverridesRevalidate(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "--camera-id", "gate-2", "--poll-interval", "0.5", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	var status api.WorkerStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if status.CameraID != "gate-2" || status.Running {
		t.Fatalf("unexpected offline status %+v", status)
	}
	if !strings.HasSuffix(status.LockFilePath, "platewatch-gate-2.lock") {
		t.Fatalf("lock path not derived from override: %s", status.LockFilePath)
	}
}

func TestBackendOverrideIsValidated(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Events.DryRun = false
	writeTestConfig(t, env.configPath, env.cfg)

	if _, err := env.run(t, "--backend", "ftp://nope", "status"); err == nil {
		t.Fatal("expected invalid backend override to fail validation")
	}
}

func TestSourceOverrideResetsDefaultMountPath(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := newCommandContext()
	ctx.flags.configPath = env.configPath
	ctx.flags.sourceURL = "rtsp://10.0.0.9/live"
	cfg, err := ctx.ensureConfig()
	if err != nil {
		t.Fatalf("ensureConfig: %v", err)
	}
	if cfg.Camera.MountPath != "rtsp://10.0.0.9/live" {
		t.Fatalf("mount path = %q", cfg.Camera.MountPath)
	}
}

func TestEventsListFallsBackToJournal(t *testing.T) {
	env := setupCLITestEnv(t)
	j := testsupport.MustOpenJournal(t, env.cfg)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, plate := range []string{"ABC123", "XYZ789"} {
		if err := j.Insert(context.Background(), journal.Entry{
			CameraID:      env.cfg.Camera.ID,
			Plate:         plate,
			DetConfidence: 0.8,
			OCRConfidence: 0.99,
			StatusCode:    200,
			DecidedAt:     base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	out, err := env.run(t, "events", "list")
	if err != nil {
		t.Fatalf("events list: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ABC123") || !strings.Contains(out, "XYZ789") {
		t.Fatalf("missing plates in table:\n%s", out)
	}
	if strings.Index(out, "XYZ789") > strings.Index(out, "ABC123") {
		t.Fatalf("expected newest first:\n%s", out)
	}

	out, err = env.run(t, "events", "list", "--plate", "abc123", "--json")
	if err != nil {
		t.Fatalf("events list --json: %v", err)
	}
	var resp api.EventListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(resp.Events) != 1 || resp.Events[0].Plate != "ABC123" || !resp.Events[0].Delivered {
		t.Fatalf("unexpected events %+v", resp.Events)
	}
}

func TestEventsPrune(t *testing.T) {
	env := setupCLITestEnv(t)
	j := testsupport.MustOpenJournal(t, env.cfg)
	if err := j.Insert(context.Background(), journal.Entry{
		CameraID:  env.cfg.Camera.ID,
		Plate:     "OLD1",
		DecidedAt: time.Now().AddDate(0, 0, -40),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := j.Insert(context.Background(), journal.Entry{CameraID: env.cfg.Camera.ID, Plate: "NEW1"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	out, err := env.run(t, "events", "prune", "--older-than", "30")
	if err != nil {
		t.Fatalf("events prune: %v", err)
	}
	if !strings.Contains(out, "Removed 1 entries") {
		t.Fatalf("unexpected output %q", out)
	}
	if count, err := j.Count(context.Background()); err != nil || count != 1 {
		t.Fatalf("Count = %d, %v", count, err)
	}
}

func TestTestEventDryRun(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "test-event", "--plate", "ab12 cd")
	if err != nil {
		t.Fatalf("test-event: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Dry-run: event for AB12CD") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTestNotify(t *testing.T) {
	t.Setenv("PLATEWATCH_NTFY_TOPIC", "")
	env := setupCLITestEnv(t)
	out, err := env.run(t, "test-notify")
	if err != nil || !strings.Contains(out, "Notifications disabled") {
		t.Fatalf("expected disabled notice, got %q, %v", out, err)
	}

	var title string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	env.cfg.Notifications.NtfyTopic = server.URL
	writeTestConfig(t, env.configPath, env.cfg)

	out, err = env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Test notification sent") || title != "Platewatch - Test" {
		t.Fatalf("unexpected output %q (title %q)", out, title)
	}
}

func TestLogsRequiresAPI(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "logs")
	if err == nil || !strings.Contains(err.Error(), "platewatch.log") {
		t.Fatalf("expected unreachable error naming the log file, got %v", err)
	}
}

func TestFormatLogEvent(t *testing.T) {
	evt := logging.LogEvent{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local),
		Level:     "info",
		Message:   "plate emitted",
		Component: "pipeline",
		FrameSeq:  42,
		Plate:     "ABC123",
		Fields:    map[string]string{"status": "200", "confirmed_by": "frames"},
	}
	got := formatLogEvent(evt)
	want := "2026-03-01 12:00:00 INFO  [pipeline] plate emitted frame=42 plate=ABC123 confirmed_by=frames status=200"
	if got != want {
		t.Fatalf("formatLogEvent = %q\nwant %q", got, want)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable("", []string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, 1)
	if !strings.Contains(out, "A") || !strings.Contains(out, "3") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable("", nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
