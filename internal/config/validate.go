package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validatePlatforms(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePublish() error {
	if c.Publish.MaxConcurrent < 1 {
		return fmt.Errorf("publish.max_concurrent_publish must be at least 1, got %d", c.Publish.MaxConcurrent)
	}
	if len(c.Publish.AcceptedExtensions) == 0 {
		return errors.New("publish.accepted_extensions must not be empty")
	}
	return nil
}

func (c *Config) validatePlatforms() error {
	switch c.Publish.DefaultPlatform {
	case "", "local", "s3":
	default:
		return fmt.Errorf("publish.default_platform: unknown platform %q", c.Publish.DefaultPlatform)
	}
	if c.Publish.DefaultPlatform == "s3" {
		if strings.TrimSpace(c.Platforms.S3.Endpoint) == "" {
			return errors.New("platforms.s3.endpoint is required when default_platform is s3")
		}
		if strings.TrimSpace(c.Platforms.S3.Bucket) == "" {
			return errors.New("platforms.s3.bucket is required when default_platform is s3")
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	values := map[string]int{
		"workflow.watch_poll_interval":  c.Workflow.WatchPollInterval,
		"workflow.watch_settle_seconds": c.Workflow.WatchSettleSeconds,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"tools.command_timeout_seconds": c.Tools.CommandTimeout,
	}
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}
	if c.Tools.ThumbnailOffset < 0 {
		return fmt.Errorf("tools.thumbnail_offset_seconds must not be negative, got %d", c.Tools.ThumbnailOffset)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
