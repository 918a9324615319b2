package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"platewatch/internal/apiclient"
	"platewatch/internal/config"
)

type globalFlags struct {
	configPath   string
	cameraID     string
	sourceURL    string
	backendURL   string
	pollInterval float64
	dryRun       bool
	logLevel     string
	apiBind      string
}

type commandContext struct {
	flags globalFlags

	configOnce sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if err := c.applyOverrides(cfg); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

// applyOverrides layers command-line flags over the loaded file and
// re-validates the result.
func (c *commandContext) applyOverrides(cfg *config.Config) error {
	f := c.flags
	changed := false
	if v := strings.TrimSpace(f.cameraID); v != "" {
		cfg.Camera.ID = v
		changed = true
	}
	if v := strings.TrimSpace(f.sourceURL); v != "" {
		if cfg.Camera.MountPath == cfg.Camera.SourceURL {
			cfg.Camera.MountPath = ""
		}
		cfg.Camera.SourceURL = v
		changed = true
	}
	if v := strings.TrimSpace(f.backendURL); v != "" {
		cfg.Events.BackendURL = v
		changed = true
	}
	if f.pollInterval > 0 {
		cfg.Capture.PollInterval = f.pollInterval
		changed = true
	}
	if f.dryRun {
		cfg.Events.DryRun = true
		changed = true
	}
	if v := strings.TrimSpace(f.logLevel); v != "" {
		cfg.Logging.Level = v
		changed = true
	}
	if v := strings.TrimSpace(f.apiBind); v != "" {
		cfg.API.Bind = v
		cfg.API.Enabled = true
		changed = true
	}
	if !changed {
		return nil
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// apiClient returns a client for the configured worker API, or nil when the
// API is disabled.
func (c *commandContext) apiClient() (*apiclient.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.API.Enabled {
		return nil, nil
	}
	return apiclient.New(cfg.API.Bind, cfg.API.Token)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
