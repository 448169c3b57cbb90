package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WatchDir   string `toml:"watch_dir"`
	StagingDir string `toml:"staging_dir"`
	PublicDir  string `toml:"public_dir"`
	LogDir     string `toml:"log_dir"`
}

// Publish contains admission-control and pipeline behavior settings.
type Publish struct {
	MaxConcurrent      int      `toml:"max_concurrent_publish"`
	AcceptedExtensions []string `toml:"accepted_extensions"`
	DefaultPlatform    string   `toml:"default_platform"`
	AutoPublish        bool     `toml:"auto_publish"`
	RemoveOriginal     bool     `toml:"remove_original"`
}

// LocalPlatform configures the local-disk VOD platform.
type LocalPlatform struct {
	VodDir string `toml:"vod_dir"`
}

// S3Platform configures the S3-compatible object storage platform.
type S3Platform struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
	BaseURL   string `toml:"base_url"`
}

// Platforms groups video platform provider configuration.
type Platforms struct {
	Local LocalPlatform `toml:"local"`
	S3    S3Platform    `toml:"s3"`
}

// Tools configures the external media binaries.
type Tools struct {
	FFmpeg          string `toml:"ffmpeg"`
	FFprobe         string `toml:"ffprobe"`
	ThumbnailOffset int    `toml:"thumbnail_offset_seconds"`
	CommandTimeout  int    `toml:"command_timeout_seconds"`
}

// Workflow contains daemon timing configuration.
type Workflow struct {
	WatchPollInterval  int `toml:"watch_poll_interval"`
	WatchSettleSeconds int `toml:"watch_settle_seconds"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completions    bool   `toml:"completions"`
	Errors         bool   `toml:"errors"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the publish daemon.
//
// Sections by subsystem:
//   - Paths: watch, staging, public and log directories
//   - Publish: concurrency bound, accepted extensions, platform defaults
//   - Platforms: local VOD directory and S3-compatible storage credentials
//   - Tools: ffmpeg/ffprobe commands for probing and thumbnails
//   - Workflow: hot-folder polling intervals
//   - Notifications: ntfy push notification settings
//   - Logging: format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Publish       Publish       `toml:"publish"`
	Platforms     Platforms     `toml:"platforms"`
	Tools         Tools         `toml:"tools"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/publishd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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

	if err := cfg.normalize(); err != nil {
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
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("publishd.toml")
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

// EnsureDirectories creates the directories daemon operation requires.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WatchDir, c.Paths.StagingDir, c.Paths.PublicDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// AcceptsExtension reports whether ext (without dot) is in the accepted
// package extension allow-list.
func (c *Config) AcceptsExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	for _, accepted := range c.Publish.AcceptedExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

// FFmpegBinary returns the ffmpeg executable used for thumbnails.
func (c *Config) FFmpegBinary() string {
	if cmd := strings.TrimSpace(c.Tools.FFmpeg); cmd != "" {
		return cmd
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for metadata.
func (c *Config) FFprobeBinary() string {
	if cmd := strings.TrimSpace(c.Tools.FFprobe); cmd != "" {
		return cmd
	}
	return "ffprobe"
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
