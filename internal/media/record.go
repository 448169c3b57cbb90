package media

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Package types derived from the submitted file extension.
const (
	TypeArchive = "tar"
	TypeVideo   = "mp4"
)

// Record represents a package persisted through the publish pipeline.
//
// ID, OriginalPath and PackageType are immutable once assigned. State is
// mutated only by state machine transition commits. LastState and
// LastTransition checkpoint the next replayable restart point and always
// trail a successful commit, never a half-applied one.
type Record struct {
	ID           string
	OriginalPath string
	PackageType  string
	Title        string

	State          State
	LastState      State
	LastTransition string

	// Platform is the target video platform ("local", "s3", ...). Empty
	// until an operator selects one, which parks the package in
	// waiting_for_upload.
	Platform string

	// MediaID is the platform-side identifier returned by upload.
	MediaID string

	PackageDir    string
	FileName      string
	ThumbnailPath string
	MetadataJSON  string

	ErrorCode    ErrorCode
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

var titleCaser = cases.Title(language.English)

// PackageTypeOf derives the package type from a file path's extension.
func PackageTypeOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// TitleOf derives a display title from a file path: the base name without
// extension, separators softened and title-cased.
func TitleOf(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Untitled"
	}
	return titleCaser.String(base)
}

// SetCheckpoint records the restart point after a transition commit. next is
// the name of the transition to run on resume.
func (r *Record) SetCheckpoint(state State, next string) {
	r.State = state
	r.LastState = state
	r.LastTransition = next
}

// SetError moves the record into the error state with a coded failure.
func (r *Record) SetError(code ErrorCode, message string) {
	r.State = StateError
	r.ErrorCode = code
	r.ErrorMessage = message
}

// ClearError resets failure fields ahead of a retry.
func (r *Record) ClearError() {
	r.ErrorCode = ErrCodeNone
	r.ErrorMessage = ""
}

// IsArchive reports whether the package carries multiple files and therefore
// includes the extraction and validation stages.
func (r *Record) IsArchive() bool {
	return r.PackageType == TypeArchive
}
