// Package platform abstracts video hosting targets. Each provider knows
// how to push a media file to its platform and report whether the media
// is ready to serve.
package platform

import "context"

// Metadata describes the media being uploaded.
type Metadata struct {
	Title         string
	MimeType      string
	ThumbnailPath string
}

// Source is one playable rendition of an uploaded media.
type Source struct {
	Link     string
	MimeType string
}

// Info reports the serving state of an uploaded media.
type Info struct {
	Available  bool
	Sources    []Source
	Thumbnails []string
}

// Provider uploads media to a hosting platform and reports on it.
type Provider interface {
	// Name returns the platform identifier used in package records.
	Name() string

	// Upload pushes the file and returns the platform media identifier.
	Upload(ctx context.Context, filePath string, meta Metadata) (string, error)

	// Info reports whether the media is available and where it is served from.
	Info(ctx context.Context, mediaID string) (Info, error)

	// Remove deletes the media from the platform.
	Remove(ctx context.Context, mediaID string) error
}
