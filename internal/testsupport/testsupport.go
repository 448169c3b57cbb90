// Package testsupport provides shared fixtures for publishd tests.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"publishd/internal/config"
	"publishd/internal/media"
	"publishd/internal/store"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(base, "watch")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.PublicDir = filepath.Join(base, "public")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Platforms.Local.VodDir = filepath.Join(base, "vod")

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("prepare test directories: %v", err)
	}
	return &cfg
}

// WithMaxConcurrent caps the pending set size on the test config.
func WithMaxConcurrent(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Publish.MaxConcurrent = n
	}
}

// WithoutDefaultPlatform clears the platform so packages park in
// waitingForUpload.
func WithoutDefaultPlatform() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Publish.DefaultPlatform = ""
	}
}

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// NewRecord inserts a fresh submitted record for the given path, with its
// checkpoint pointing at next as the first transition to run.
func NewRecord(t testing.TB, st *store.Store, id, path, next string) *media.Record {
	t.Helper()

	rec := &media.Record{
		ID:           id,
		OriginalPath: path,
		PackageType:  media.PackageTypeOf(path),
		Title:        media.TitleOf(path),
		ErrorCode:    media.ErrCodeNone,
	}
	rec.SetCheckpoint(media.StateSubmitted, next)
	if err := st.Insert(context.Background(), rec); err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return rec
}
