package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"publishd/internal/config"
)

func TestLocalUploadAndInfo(t *testing.T) {
	vodDir := t.TempDir()
	srcDir := t.TempDir()

	src := filepath.Join(srcDir, "lecture.mp4")
	if err := os.WriteFile(src, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	thumb := filepath.Join(srcDir, "thumb.jpg")
	if err := os.WriteFile(thumb, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write thumbnail: %v", err)
	}

	provider := NewLocal(vodDir)
	mediaID, err := provider.Upload(context.Background(), src, Metadata{Title: "Lecture", ThumbnailPath: thumb})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if mediaID == "" {
		t.Fatal("expected non-empty media id")
	}

	info, err := provider.Info(context.Background(), mediaID)
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if !info.Available {
		t.Fatal("expected media to be available after upload")
	}
	if len(info.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(info.Sources))
	}
	if info.Sources[0].MimeType != "video/mp4" {
		t.Fatalf("expected video/mp4 source, got %q", info.Sources[0].MimeType)
	}
	if len(info.Thumbnails) != 1 {
		t.Fatalf("expected 1 thumbnail, got %d", len(info.Thumbnails))
	}
}

func TestLocalInfoUnknownMedia(t *testing.T) {
	provider := NewLocal(t.TempDir())

	info, err := provider.Info(context.Background(), "no-such-media")
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if info.Available {
		t.Fatal("expected unknown media to be unavailable")
	}
}

func TestLocalRemove(t *testing.T) {
	vodDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	provider := NewLocal(vodDir)
	mediaID, err := provider.Upload(context.Background(), src, Metadata{})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if err := provider.Remove(context.Background(), mediaID); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(vodDir, mediaID)); !os.IsNotExist(err) {
		t.Fatalf("expected media directory to be gone, stat err: %v", err)
	}
}

func TestRegistryUnknownPlatform(t *testing.T) {
	cfg := config.Default()
	cfg.Platforms.Local.VodDir = t.TempDir()

	registry, err := NewRegistry(&cfg)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	if _, err := registry.Get(PlatformLocal); err != nil {
		t.Fatalf("expected local provider, got error: %v", err)
	}

	_, err = registry.Get("vimeo")
	var unknown *ErrUnknownPlatform
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownPlatform, got %v", err)
	}
	if unknown.Platform != "vimeo" {
		t.Fatalf("expected platform vimeo in error, got %q", unknown.Platform)
	}
}

func TestRegistryNames(t *testing.T) {
	cfg := config.Default()
	cfg.Platforms.Local.VodDir = t.TempDir()

	registry, err := NewRegistry(&cfg)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	names := registry.Names()
	if len(names) != 1 || names[0] != PlatformLocal {
		t.Fatalf("expected [local], got %v", names)
	}
}
