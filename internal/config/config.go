package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Camera identifies the stream this worker watches.
type Camera struct {
	ID        string `toml:"id"`
	SourceURL string `toml:"source_url"`
	// MountPath is reported to the backend as mountPath. Defaults to SourceURL.
	MountPath string `toml:"mount_path"`
}

// Capture contains frame acquisition and scheduling settings.
type Capture struct {
	PollInterval    float64 `toml:"poll_interval"`
	ReconnectDelay  float64 `toml:"reconnect_delay"`
	ReconnectSettle float64 `toml:"reconnect_settle"`
	MaxWorkers      int     `toml:"max_workers"`
	FFmpegBinary    string  `toml:"ffmpeg_binary"`
	RTSPTransport   string  `toml:"rtsp_transport"`
	FrameRate       int     `toml:"frame_rate"`
	LoopReplay      bool    `toml:"loop_replay"`
}

// Detector contains settings for the plate detection service.
type Detector struct {
	Endpoint       string  `toml:"endpoint"`
	MinConfidence  float64 `toml:"min_confidence"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Recognizer contains settings for the plate OCR service.
type Recognizer struct {
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Quality contains crop and recognition plausibility thresholds.
type Quality struct {
	MinCropWidth           int     `toml:"min_crop_width"`
	MinCropHeight          int     `toml:"min_crop_height"`
	MinCropArea            int     `toml:"min_crop_area"`
	MinCropRatio           float64 `toml:"min_crop_ratio"`
	MaxCropRatio           float64 `toml:"max_crop_ratio"`
	SaveOnlyOnPlate        bool    `toml:"save_only_on_plate"`
	PlateRegex             string  `toml:"plate_regex"`
	MinCharConfidence      float64 `toml:"min_char_confidence"`
	MinCharConfidenceRatio float64 `toml:"min_char_confidence_ratio"`
	RequireCharConfidences bool    `toml:"require_char_confidences"`
}

// Confirmation controls when a plate sighting becomes emit-eligible.
type Confirmation struct {
	Frames                  int     `toml:"frames"`
	Seconds                 float64 `toml:"seconds"`
	SightingsTTL            float64 `toml:"sightings_ttl"`
	CountSuppressedSighting bool    `toml:"count_suppressed_sightings"`
}

// Dedup controls repeat-emission suppression.
type Dedup struct {
	WindowSeconds float64 `toml:"window_seconds"`
	EmittedTTL    float64 `toml:"emitted_ttl"`
}

// Scoring contains the high-confidence blend weights and thresholds.
type Scoring struct {
	Alpha             float64 `toml:"alpha"`
	OCRThreshold      float64 `toml:"ocr_threshold"`
	DetThreshold      float64 `toml:"det_threshold"`
	DetPathMinOCR     float64 `toml:"det_path_min_ocr"`
	CombinedThreshold float64 `toml:"combined_threshold"`
}

// Events contains backend delivery settings.
type Events struct {
	BackendURL       string  `toml:"backend_url"`
	Token            string  `toml:"token"`
	JWTSecret        string  `toml:"jwt_secret"`
	JWTTTLSeconds    int     `toml:"jwt_ttl_seconds"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	RetryAttempts    int     `toml:"retry_attempts"`
	RetryBaseDelay   float64 `toml:"retry_base_delay"`
	MinEventInterval float64 `toml:"min_event_interval"`
	IncludeSnapshot  bool    `toml:"include_snapshot"`
	DryRun           bool    `toml:"dry_run"`
}

// Artifacts contains debug artifact directories. Empty directories disable
// the corresponding category.
type Artifacts struct {
	DetectionsDir string `toml:"detections_dir"`
	CropsDir      string `toml:"crops_dir"`
	FramesDir     string `toml:"frames_dir"`
	JPEGQuality   int    `toml:"jpeg_quality"`
}

// Cloudinary contains remote artifact upload settings.
type Cloudinary struct {
	Enabled       bool    `toml:"enabled"`
	CloudName     string  `toml:"cloud_name"`
	APIKey        string  `toml:"api_key"`
	APISecret     string  `toml:"api_secret"`
	Folder        string  `toml:"folder"`
	UploadRetries int     `toml:"upload_retries"`
	RetryBackoff  float64 `toml:"retry_backoff"`
	DeleteLocal   bool    `toml:"delete_local"`
}

// Paths contains state directories.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// API contains the worker status API settings.
type API struct {
	Enabled bool     `toml:"enabled"`
	Bind    string   `toml:"bind"`
	Token   string   `toml:"token"`
	Origins []string `toml:"cors_origins"`
}

// Journal contains the SQLite event journal settings.
type Journal struct {
	Enabled       bool   `toml:"enabled"`
	Path          string `toml:"path"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains ntfy alert settings. An empty topic disables alerts.
type Notifications struct {
	NtfyTopic          string   `toml:"ntfy_topic"`
	RequestTimeout     int      `toml:"request_timeout"`
	Watchlist          []string `toml:"watchlist"`
	HighConfidenceOnly bool     `toml:"high_confidence_only"`
	DeliveryFailures   bool     `toml:"delivery_failures"`
	WorkerLifecycle    bool     `toml:"worker_lifecycle"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for a platewatch worker.
//
// Configuration sections by subsystem:
//   - Camera: stream identity and source URL
//   - Capture: polling, reconnect and worker pool sizing
//   - Detector, Recognizer: inference service endpoints
//   - Quality, Confirmation, Dedup, Scoring: decision thresholds
//   - Events: backend delivery, auth and dry-run
//   - Artifacts, Cloudinary: debug artifact persistence
//   - Notifications: ntfy plate alerts
//   - Paths, API, Journal, Logging: local state and observability
type Config struct {
	Camera        Camera        `toml:"camera"`
	Capture       Capture       `toml:"capture"`
	Detector      Detector      `toml:"detector"`
	Recognizer    Recognizer    `toml:"recognizer"`
	Quality       Quality       `toml:"quality"`
	Confirmation  Confirmation  `toml:"confirmation"`
	Dedup         Dedup         `toml:"dedup"`
	Scoring       Scoring       `toml:"scoring"`
	Events        Events        `toml:"events"`
	Artifacts     Artifacts     `toml:"artifacts"`
	Cloudinary    Cloudinary    `toml:"cloudinary"`
	Notifications Notifications `toml:"notifications"`
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Journal       Journal       `toml:"journal"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("platewatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for worker operation.
// Artifact directories are only created when configured.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range c.ArtifactDirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact directory %q: %w", dir, err)
		}
	}
	return nil
}

// ArtifactDirs lists the configured, non-empty artifact directories.
func (c *Config) ArtifactDirs() []string {
	var dirs []string
	for _, dir := range []string{c.Artifacts.DetectionsDir, c.Artifacts.CropsDir, c.Artifacts.FramesDir} {
		if strings.TrimSpace(dir) != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// FFmpegBinary returns the ffmpeg executable used by stream sources.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Capture.FFmpegBinary); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// LockPath returns the per-camera single instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "platewatch-"+c.Camera.ID+".lock")
}

// PIDPath returns the per-camera pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "platewatch-"+c.Camera.ID+".pid")
}

// JournalPath returns the event journal database path.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Paths.StateDir, "events.db")
}

// PollInterval returns the minimum spacing between submitted frames.
func (c *Config) PollInterval() time.Duration { return seconds(c.Capture.PollInterval) }

// ReconnectDelay returns the wait before reopening a failed source.
func (c *Config) ReconnectDelay() time.Duration { return seconds(c.Capture.ReconnectDelay) }

// ReconnectSettle returns the wait after reopening a source.
func (c *Config) ReconnectSettle() time.Duration { return seconds(c.Capture.ReconnectSettle) }

// ConfirmWindow returns the elapsed-time confirmation threshold.
func (c *Config) ConfirmWindow() time.Duration { return seconds(c.Confirmation.Seconds) }

// SightingsTTL returns the idle time after which a sighting is forgotten.
func (c *Config) SightingsTTL() time.Duration { return seconds(c.Confirmation.SightingsTTL) }

// DedupWindow returns the repeat-emission suppression window.
func (c *Config) DedupWindow() time.Duration { return seconds(c.Dedup.WindowSeconds) }

// EmittedTTL returns how long emission timestamps are retained.
func (c *Config) EmittedTTL() time.Duration { return seconds(c.Dedup.EmittedTTL) }

// MinEventInterval returns the spacing between high-confidence saves.
func (c *Config) MinEventInterval() time.Duration { return seconds(c.Events.MinEventInterval) }

// RetryBaseDelay returns the first backoff delay for backend delivery.
func (c *Config) RetryBaseDelay() time.Duration { return seconds(c.Events.RetryBaseDelay) }

func seconds(value float64) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
