package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateInference(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateConfirmation(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateCloudinary(); err != nil {
		return err
	}
	if c.Notifications.NtfyTopic != "" {
		if err := validateHTTPURL(c.Notifications.NtfyTopic); err != nil {
			return fmt.Errorf("notifications.ntfy_topic: %w", err)
		}
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.PollInterval < 0 {
		return errors.New("capture.poll_interval must be zero or positive")
	}
	if c.Capture.ReconnectDelay < 0 || c.Capture.ReconnectSettle < 0 {
		return errors.New("capture.reconnect_delay and capture.reconnect_settle must be zero or positive")
	}
	if c.Capture.MaxWorkers < 1 {
		return errors.New("capture.max_workers must be at least 1")
	}
	switch c.Capture.RTSPTransport {
	case "tcp", "udp":
	default:
		return fmt.Errorf("capture.rtsp_transport must be tcp or udp, got %q", c.Capture.RTSPTransport)
	}
	return nil
}

func (c *Config) validateInference() error {
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return errors.New("detector.min_confidence must be between 0 and 1")
	}
	for name, endpoint := range map[string]string{
		"detector.endpoint":   c.Detector.Endpoint,
		"recognizer.endpoint": c.Recognizer.Endpoint,
	} {
		if strings.TrimSpace(endpoint) == "" {
			continue
		}
		if err := validateHTTPURL(endpoint); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateQuality() error {
	q := c.Quality
	if q.MinCropWidth < 0 || q.MinCropHeight < 0 || q.MinCropArea < 0 {
		return errors.New("quality crop minimums must be zero or positive")
	}
	if q.MinCropRatio <= 0 || q.MaxCropRatio <= 0 {
		return errors.New("quality.min_crop_ratio and quality.max_crop_ratio must be positive")
	}
	if q.MinCropRatio > q.MaxCropRatio {
		return fmt.Errorf("quality.min_crop_ratio (%.2f) exceeds quality.max_crop_ratio (%.2f)", q.MinCropRatio, q.MaxCropRatio)
	}
	if strings.TrimSpace(q.PlateRegex) == "" {
		return errors.New("quality.plate_regex must be set")
	}
	if _, err := regexp.Compile(q.PlateRegex); err != nil {
		return fmt.Errorf("quality.plate_regex: %w", err)
	}
	if q.MinCharConfidence < 0 || q.MinCharConfidence > 1 {
		return errors.New("quality.min_char_confidence must be between 0 and 1")
	}
	if q.MinCharConfidenceRatio < 0 || q.MinCharConfidenceRatio > 1 {
		return errors.New("quality.min_char_confidence_ratio must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateConfirmation() error {
	if c.Confirmation.Frames < 1 {
		return errors.New("confirmation.frames must be at least 1")
	}
	if c.Confirmation.Seconds < 0 {
		return errors.New("confirmation.seconds must be zero or positive")
	}
	if c.Confirmation.SightingsTTL <= 0 {
		return errors.New("confirmation.sightings_ttl must be positive")
	}
	if c.Dedup.WindowSeconds < 0 {
		return errors.New("dedup.window_seconds must be zero or positive")
	}
	if c.Dedup.EmittedTTL < c.Dedup.WindowSeconds {
		return fmt.Errorf("dedup.emitted_ttl (%.0fs) must not be shorter than dedup.window_seconds (%.0fs)", c.Dedup.EmittedTTL, c.Dedup.WindowSeconds)
	}
	return nil
}

func (c *Config) validateScoring() error {
	s := c.Scoring
	for name, value := range map[string]float64{
		"scoring.alpha":              s.Alpha,
		"scoring.ocr_threshold":      s.OCRThreshold,
		"scoring.det_threshold":      s.DetThreshold,
		"scoring.det_path_min_ocr":   s.DetPathMinOCR,
		"scoring.combined_threshold": s.CombinedThreshold,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.DryRun {
		return nil
	}
	if strings.TrimSpace(c.Events.BackendURL) == "" {
		return errors.New("events.backend_url must be set unless events.dry_run is true")
	}
	if err := validateHTTPURL(c.Events.BackendURL); err != nil {
		return fmt.Errorf("events.backend_url: %w", err)
	}
	if c.Events.Token != "" && c.Events.JWTSecret != "" {
		return errors.New("events.token and events.jwt_secret are mutually exclusive")
	}
	if c.Events.MinEventInterval < 0 {
		return errors.New("events.min_event_interval must be zero or positive")
	}
	return nil
}

func (c *Config) validateCloudinary() error {
	if !c.Cloudinary.Enabled {
		return nil
	}
	if c.Cloudinary.CloudName == "" || c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
		return errors.New("cloudinary.cloud_name, cloudinary.api_key and cloudinary.api_secret must be set when cloudinary.enabled is true (or CLOUDINARY_* env vars)")
	}
	if len(c.ArtifactDirs()) == 0 {
		return errors.New("cloudinary.enabled requires at least one artifacts directory")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
