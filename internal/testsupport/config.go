package testsupport

import (
	"path/filepath"
	"testing"

	"platewatch/internal/config"
)

// ConfigOption adjusts a test configuration after the defaults are applied.
// base is the temp directory holding every path of the config.
type ConfigOption func(cfg *config.Config, base string)

// NewConfig returns a worker config rooted in a fresh temp directory. The
// camera replays base/frames, the API binds an ephemeral port and events are
// dry-run so tests never reach a real backend.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Camera.ID = "cam-test"
	cfg.Camera.SourceURL = "dir://" + filepath.Join(base, "frames")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Events.DryRun = true
	for _, opt := range opts {
		opt(&cfg, base)
	}
	return &cfg
}

// WithArtifacts enables the detections, crops and frames directories.
func WithArtifacts() ConfigOption {
	return func(cfg *config.Config, base string) {
		cfg.Artifacts.DetectionsDir = filepath.Join(base, "detections")
		cfg.Artifacts.CropsDir = filepath.Join(base, "crops")
		cfg.Artifacts.FramesDir = filepath.Join(base, "full_frames")
	}
}

// WithoutAPI disables the status API.
func WithoutAPI() ConfigOption {
	return func(cfg *config.Config, _ string) {
		cfg.API.Enabled = false
	}
}

// BaseDir returns the temp directory backing a config from NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
