package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"publishd/internal/fileutil"
)

// PlatformLocal serves media straight from a directory on this host.
const PlatformLocal = "local"

// Local stores uploaded media under a video-on-demand directory, one
// subdirectory per media identifier.
type Local struct {
	vodDir string
}

// NewLocal constructs a provider rooted at vodDir.
func NewLocal(vodDir string) *Local {
	return &Local{vodDir: vodDir}
}

func (l *Local) Name() string {
	return PlatformLocal
}

// Upload copies the file into a fresh media directory and returns its id.
func (l *Local) Upload(ctx context.Context, filePath string, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mediaID := uuid.NewString()
	mediaDir := filepath.Join(l.vodDir, mediaID)
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	dst := filepath.Join(mediaDir, "video"+filepath.Ext(filePath))
	if err := fileutil.CopyFileVerified(filePath, dst); err != nil {
		os.RemoveAll(mediaDir)
		return "", fmt.Errorf("copy media to vod directory: %w", err)
	}

	if meta.ThumbnailPath != "" {
		thumbDst := filepath.Join(mediaDir, "thumbnail.jpg")
		if err := fileutil.CopyFile(meta.ThumbnailPath, thumbDst); err != nil {
			os.RemoveAll(mediaDir)
			return "", fmt.Errorf("copy thumbnail to vod directory: %w", err)
		}
	}

	return mediaID, nil
}

// Info reports the media as available once its directory holds a video file.
func (l *Local) Info(ctx context.Context, mediaID string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	mediaDir := filepath.Join(l.vodDir, mediaID)
	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, nil
		}
		return Info{}, fmt.Errorf("read media directory: %w", err)
	}

	info := Info{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case name == "thumbnail.jpg":
			info.Thumbnails = append(info.Thumbnails, filepath.Join(mediaDir, name))
		case filepath.Ext(name) != "":
			info.Sources = append(info.Sources, Source{
				Link:     filepath.Join(mediaDir, name),
				MimeType: mimeTypeFor(name),
			})
		}
	}
	info.Available = len(info.Sources) > 0
	return info, nil
}

// Remove deletes the media directory.
func (l *Local) Remove(ctx context.Context, mediaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(l.vodDir, mediaID)); err != nil {
		return fmt.Errorf("remove media directory: %w", err)
	}
	return nil
}

func mimeTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

var _ Provider = (*Local)(nil)
