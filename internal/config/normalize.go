package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePublish()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.PublicDir, err = expandPath(c.Paths.PublicDir); err != nil {
		return fmt.Errorf("paths.public_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Platforms.Local.VodDir, err = expandPath(c.Platforms.Local.VodDir); err != nil {
		return fmt.Errorf("platforms.local.vod_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePublish() {
	normalized := make([]string, 0, len(c.Publish.AcceptedExtensions))
	for _, ext := range c.Publish.AcceptedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			normalized = append(normalized, ext)
		}
	}
	c.Publish.AcceptedExtensions = normalized
	c.Publish.DefaultPlatform = strings.ToLower(strings.TrimSpace(c.Publish.DefaultPlatform))
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
