package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"publishd/internal/config"
)

func TestLoadCustomPath(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`watch_dir = "` + filepath.Join(dir, "watch") + `"`,
		`staging_dir = "` + filepath.Join(dir, "staging") + `"`,
		`public_dir = "` + filepath.Join(dir, "public") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		"",
		"[publish]",
		"max_concurrent_publish = 2",
		`accepted_extensions = [".TAR", "mp4", ""]`,
		`default_platform = "LOCAL"`,
	}, "\n")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if !exists || resolved != cfgPath {
		t.Fatalf("unexpected resolution %q %v", resolved, exists)
	}
	if cfg.Publish.MaxConcurrent != 2 {
		t.Fatalf("unexpected concurrency %d", cfg.Publish.MaxConcurrent)
	}
	if len(cfg.Publish.AcceptedExtensions) != 2 {
		t.Fatalf("extensions not normalized: %v", cfg.Publish.AcceptedExtensions)
	}
	if cfg.Publish.DefaultPlatform != "local" {
		t.Fatalf("platform not normalized: %q", cfg.Publish.DefaultPlatform)
	}
	if !cfg.AcceptsExtension("tar") || !cfg.AcceptsExtension(".MP4") {
		t.Fatal("expected normalized extensions to be accepted")
	}
	if cfg.AcceptsExtension("zip") {
		t.Fatal("zip must not be accepted")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("expected missing config")
	}
	if cfg.Publish.MaxConcurrent != 3 {
		t.Fatalf("unexpected default concurrency %d", cfg.Publish.MaxConcurrent)
	}
	if cfg.FFprobeBinary() != "ffprobe" || cfg.FFmpegBinary() != "ffmpeg" {
		t.Fatal("unexpected tool defaults")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"zero concurrency":  func(c *config.Config) { c.Publish.MaxConcurrent = 0 },
		"no extensions":     func(c *config.Config) { c.Publish.AcceptedExtensions = nil },
		"unknown platform":  func(c *config.Config) { c.Publish.DefaultPlatform = "vhs" },
		"s3 no endpoint":    func(c *config.Config) { c.Publish.DefaultPlatform = "s3" },
		"bad poll interval": func(c *config.Config) { c.Workflow.WatchPollInterval = 0 },
		"bad log format":    func(c *config.Config) { c.Logging.Format = "xml" },
		"bad log level":     func(c *config.Config) { c.Logging.Level = "verbose" },
	}
	for name, mutate := range cases {
		cfg := config.Default()
		cfg.Logging.Format = "console"
		cfg.Logging.Level = "info"
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "max_concurrent_publish") {
		t.Fatal("sample config missing expected keys")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(dir, "watch")
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Paths.PublicDir = filepath.Join(dir, "public")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"watch", "staging", "public", "logs"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Fatalf("directory %s missing: %v", sub, err)
		}
	}
}
