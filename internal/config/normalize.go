package config

import (
	"fmt"
	"os"
	"strings"
)

// Normalize expands paths, applies environment fallbacks and fills blank
// values with defaults. Load calls it; callers that mutate a loaded config
// (for example CLI overrides) call it again before Validate.
func (c *Config) Normalize() error {
	c.normalizeCamera()
	c.normalizeCapture()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeArtifacts(); err != nil {
		return err
	}
	c.normalizeEvents()
	c.normalizeCloudinary()
	c.normalizeNotifications()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeCamera() {
	c.Camera.ID = strings.TrimSpace(c.Camera.ID)
	if c.Camera.ID == "" {
		c.Camera.ID = defaultCameraID
	}
	c.Camera.SourceURL = strings.TrimSpace(c.Camera.SourceURL)
	if c.Camera.SourceURL == "" {
		if value, ok := os.LookupEnv("PLATEWATCH_SOURCE_URL"); ok {
			c.Camera.SourceURL = strings.TrimSpace(value)
		}
	}
	c.Camera.MountPath = strings.TrimSpace(c.Camera.MountPath)
	if c.Camera.MountPath == "" {
		c.Camera.MountPath = c.Camera.SourceURL
	}
}

func (c *Config) normalizeCapture() {
	if c.Capture.MaxWorkers <= 0 {
		c.Capture.MaxWorkers = defaultMaxWorkers
	}
	c.Capture.RTSPTransport = strings.ToLower(strings.TrimSpace(c.Capture.RTSPTransport))
	if c.Capture.RTSPTransport == "" {
		c.Capture.RTSPTransport = defaultRTSPTransport
	}
	c.Capture.FFmpegBinary = strings.TrimSpace(c.Capture.FFmpegBinary)
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Journal.Path = strings.TrimSpace(c.Journal.Path)
	if c.Journal.Path != "" {
		if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
			return fmt.Errorf("journal.path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeArtifacts() error {
	var err error
	if c.Artifacts.DetectionsDir, err = expandPath(strings.TrimSpace(c.Artifacts.DetectionsDir)); err != nil {
		return fmt.Errorf("artifacts.detections_dir: %w", err)
	}
	if c.Artifacts.CropsDir, err = expandPath(strings.TrimSpace(c.Artifacts.CropsDir)); err != nil {
		return fmt.Errorf("artifacts.crops_dir: %w", err)
	}
	if c.Artifacts.FramesDir, err = expandPath(strings.TrimSpace(c.Artifacts.FramesDir)); err != nil {
		return fmt.Errorf("artifacts.frames_dir: %w", err)
	}
	if c.Artifacts.JPEGQuality <= 0 {
		c.Artifacts.JPEGQuality = defaultJPEGQuality
	}
	return nil
}

func (c *Config) normalizeEvents() {
	c.Events.BackendURL = strings.TrimSpace(c.Events.BackendURL)
	if c.Events.Token == "" {
		if value, ok := os.LookupEnv("PLATEWATCH_BACKEND_TOKEN"); ok {
			c.Events.Token = value
		}
	}
	c.Events.Token = strings.TrimSpace(c.Events.Token)
	if c.Events.JWTSecret == "" {
		if value, ok := os.LookupEnv("PLATEWATCH_JWT_SECRET"); ok {
			c.Events.JWTSecret = value
		}
	}
	if c.Events.RetryAttempts <= 0 {
		c.Events.RetryAttempts = defaultRetryAttempts
	}
	if c.Events.JWTTTLSeconds <= 0 {
		c.Events.JWTTTLSeconds = defaultJWTTTLSeconds
	}
	if c.Events.TimeoutSeconds <= 0 {
		c.Events.TimeoutSeconds = defaultEventTimeout
	}
}

func (c *Config) normalizeCloudinary() {
	lookups := []struct {
		target *string
		env    string
	}{
		{&c.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME"},
		{&c.Cloudinary.APIKey, "CLOUDINARY_API_KEY"},
		{&c.Cloudinary.APISecret, "CLOUDINARY_API_SECRET"},
	}
	for _, l := range lookups {
		*l.target = strings.TrimSpace(*l.target)
		if *l.target == "" {
			if value, ok := os.LookupEnv(l.env); ok {
				*l.target = strings.TrimSpace(value)
			}
		}
	}
	c.Cloudinary.Folder = strings.Trim(strings.TrimSpace(c.Cloudinary.Folder), "/")
	if c.Cloudinary.UploadRetries <= 0 {
		c.Cloudinary.UploadRetries = defaultCloudinaryRetries
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("PLATEWATCH_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
	watch := c.Notifications.Watchlist[:0]
	for _, plate := range c.Notifications.Watchlist {
		if plate = strings.TrimSpace(plate); plate != "" {
			watch = append(watch, plate)
		}
	}
	c.Notifications.Watchlist = watch
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("PLATEWATCH_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Journal.RetentionDays < 0 {
		c.Journal.RetentionDays = 0
	}
}
