package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"platewatch/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "platewatch")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.JournalPath() != filepath.Join(wantState, "events.db") {
		t.Fatalf("unexpected journal path: %q", cfg.JournalPath())
	}
	if cfg.Camera.ID != "cam-unknown" {
		t.Fatalf("unexpected camera id: %q", cfg.Camera.ID)
	}
	if cfg.API.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if len(cfg.ArtifactDirs()) != 0 {
		t.Fatalf("expected artifact directories disabled by default, got %v", cfg.ArtifactDirs())
	}
}

func TestDefaultThresholds(t *testing.T) {
	cfg := config.Default()
	if cfg.Quality.MinCropWidth != 30 || cfg.Quality.MinCropHeight != 10 || cfg.Quality.MinCropArea != 300 {
		t.Fatalf("unexpected crop minimums: %+v", cfg.Quality)
	}
	if cfg.Quality.PlateRegex != `^[A-Z0-9]{3,8}$` {
		t.Fatalf("unexpected plate regex %q", cfg.Quality.PlateRegex)
	}
	if cfg.Confirmation.Frames != 3 || cfg.ConfirmWindow() != 5*time.Second {
		t.Fatalf("unexpected confirmation defaults: %+v", cfg.Confirmation)
	}
	if cfg.DedupWindow() != 10*time.Second || cfg.EmittedTTL() != 300*time.Second {
		t.Fatalf("unexpected dedup defaults: %+v", cfg.Dedup)
	}
	if cfg.SightingsTTL() != 30*time.Second {
		t.Fatalf("unexpected sightings ttl %s", cfg.SightingsTTL())
	}
	if cfg.ReconnectSettle() != 500*time.Millisecond {
		t.Fatalf("unexpected reconnect settle %s", cfg.ReconnectSettle())
	}
	if cfg.Scoring.Alpha != 0.75 || cfg.Scoring.OCRThreshold != 0.98 || cfg.Scoring.DetThreshold != 0.55 || cfg.Scoring.CombinedThreshold != 0.3 {
		t.Fatalf("unexpected scoring defaults: %+v", cfg.Scoring)
	}
	if cfg.MinEventInterval() != 2*time.Second {
		t.Fatalf("unexpected min event interval %s", cfg.MinEventInterval())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "platewatch.toml")

	type payload struct {
		Camera struct {
			ID        string `toml:"id"`
			SourceURL string `toml:"source_url"`
		} `toml:"camera"`
		Confirmation struct {
			Frames  int     `toml:"frames"`
			Seconds float64 `toml:"seconds"`
		} `toml:"confirmation"`
		Artifacts struct {
			CropsDir string `toml:"crops_dir"`
		} `toml:"artifacts"`
	}
	custom := payload{}
	custom.Camera.ID = "gate-north"
	custom.Camera.SourceURL = "rtsp://10.0.0.5/stream1"
	custom.Confirmation.Frames = 2
	custom.Confirmation.Seconds = 2.5
	custom.Artifacts.CropsDir = filepath.Join(tempDir, "crops")
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Camera.ID != "gate-north" {
		t.Fatalf("expected camera id from file, got %q", cfg.Camera.ID)
	}
	if cfg.Camera.MountPath != "rtsp://10.0.0.5/stream1" {
		t.Fatalf("expected mount path to default to source url, got %q", cfg.Camera.MountPath)
	}
	if cfg.Confirmation.Frames != 2 || cfg.ConfirmWindow() != 2500*time.Millisecond {
		t.Fatalf("unexpected confirmation override: %+v", cfg.Confirmation)
	}
	if cfg.Dedup.WindowSeconds != 10 {
		t.Fatalf("expected untouched sections to keep defaults, got %+v", cfg.Dedup)
	}
	if got := cfg.ArtifactDirs(); len(got) != 1 || got[0] != filepath.Join(tempDir, "crops") {
		t.Fatalf("unexpected artifact dirs %v", got)
	}
}

func TestEnvFallbacksFillBlankSecrets(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "platewatch.toml")
	contents := `
[events]
token = "file-token"

[cloudinary]
enabled = false
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PLATEWATCH_BACKEND_TOKEN", "env-token")
	t.Setenv("PLATEWATCH_API_TOKEN", "env-api")
	t.Setenv("CLOUDINARY_API_KEY", "env-cld-key")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Events.Token != "file-token" {
		t.Errorf("expected file token to win over env, got %q", cfg.Events.Token)
	}
	if cfg.API.Token != "env-api" {
		t.Errorf("expected api token from env, got %q", cfg.API.Token)
	}
	if cfg.Cloudinary.APIKey != "env-cld-key" {
		t.Errorf("expected cloudinary key from env, got %q", cfg.Cloudinary.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[confirmation]") {
		t.Fatalf("sample config missing confirmation section: %s", contents)
	}

	cfg := config.Default()
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Quality.PlateRegex != config.Default().Quality.PlateRegex {
		t.Fatalf("sample regex drifted from default: %q", cfg.Quality.PlateRegex)
	}
	if !strings.Contains(cfg.Paths.StateDir, "platewatch") {
		t.Fatalf("expected state dir to contain platewatch, got %q", cfg.Paths.StateDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero workers", func(c *config.Config) { c.Capture.MaxWorkers = 0 }},
		{"bad transport", func(c *config.Config) { c.Capture.RTSPTransport = "http" }},
		{"inverted ratio", func(c *config.Config) { c.Quality.MinCropRatio = 13 }},
		{"bad regex", func(c *config.Config) { c.Quality.PlateRegex = "([A-Z" }},
		{"char ratio above one", func(c *config.Config) { c.Quality.MinCharConfidenceRatio = 1.5 }},
		{"zero confirm frames", func(c *config.Config) { c.Confirmation.Frames = 0 }},
		{"emitted ttl shorter than window", func(c *config.Config) { c.Dedup.EmittedTTL = 5 }},
		{"alpha above one", func(c *config.Config) { c.Scoring.Alpha = 2 }},
		{"missing backend", func(c *config.Config) { c.Events.BackendURL = "" }},
		{"backend scheme", func(c *config.Config) { c.Events.BackendURL = "ftp://host/events" }},
		{"token and jwt", func(c *config.Config) { c.Events.Token = "a"; c.Events.JWTSecret = "b" }},
		{"cloudinary without creds", func(c *config.Config) { c.Cloudinary.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateDryRunSkipsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Events.BackendURL = ""
	cfg.Events.DryRun = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dry run should not require a backend: %v", err)
	}
}
