package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"publishd/internal/fileutil"
	"publishd/internal/fsm"
	"publishd/internal/logging"
	"publishd/internal/media"
	"publishd/internal/platform"
)

// descriptorName is the optional manifest an archive may carry at its root
// to name the video file and attach extra display data.
const descriptorName = "info.json"

type archiveDescriptor struct {
	FileName string            `json:"filename"`
	Title    string            `json:"title"`
	Extra    map[string]string `json:"extra"`
}

// packageData is the document written to the public directory for players.
type packageData struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	FileName string   `json:"fileName"`
	Images   []string `json:"images,omitempty"`
}

func (p *Package) mediaPath() string {
	return filepath.Join(p.record.PackageDir, p.record.FileName)
}

func (p *Package) publicDir() string {
	return filepath.Join(p.cfg.Paths.PublicDir, p.record.ID)
}

func (p *Package) initStage(ctx context.Context) error {
	if _, err := os.Stat(p.record.OriginalPath); err != nil {
		return media.NewPublishError(media.ErrCodeCopy, "source file not accessible", err)
	}
	p.record.PackageDir = filepath.Join(p.cfg.Paths.StagingDir, p.record.ID)
	if err := os.MkdirAll(p.record.PackageDir, 0o755); err != nil {
		return media.NewPublishError(media.ErrCodeCopy, "create staging directory", err)
	}
	p.record.FileName = filepath.Base(p.record.OriginalPath)
	return nil
}

func (p *Package) copyStage(ctx context.Context) error {
	dst := p.mediaPath()
	if err := fileutil.CopyFileVerified(p.record.OriginalPath, dst); err != nil {
		return media.NewPublishError(media.ErrCodeCopy, "copy package into staging", err)
	}
	if p.cfg.Publish.RemoveOriginal {
		if err := os.Remove(p.record.OriginalPath); err != nil {
			return media.NewPublishError(media.ErrCodeUnlink, "remove original package", err)
		}
	}
	return nil
}

func (p *Package) extractStage(ctx context.Context) error {
	if err := fileutil.ExtractTar(p.mediaPath(), p.record.PackageDir); err != nil {
		return media.NewPublishError(media.ErrCodeExtract, "extract archive", err)
	}
	return nil
}

// validateStage checks the extracted archive holds a playable video and
// points the record at it. An optional info.json may name the file and
// override the display title.
func (p *Package) validateStage(ctx context.Context) error {
	var desc archiveDescriptor
	descPath := filepath.Join(p.record.PackageDir, descriptorName)
	if raw, err := os.ReadFile(descPath); err == nil {
		if err := json.Unmarshal(raw, &desc); err != nil {
			return media.NewPublishError(media.ErrCodeValidation, "parse archive descriptor", err)
		}
	}

	if desc.FileName != "" {
		candidate := filepath.Join(p.record.PackageDir, filepath.Base(desc.FileName))
		if _, err := os.Stat(candidate); err != nil {
			return media.NewPublishError(media.ErrCodeValidation, "descriptor names a missing video file", err)
		}
		p.record.FileName = filepath.Base(desc.FileName)
	} else {
		videos, err := fileutil.ScanDir(p.record.PackageDir, "mp4")
		if err != nil {
			return media.NewPublishError(media.ErrCodeValidation, "scan archive for video", err)
		}
		if len(videos) != 1 {
			return media.NewPublishError(media.ErrCodeValidation,
				fmt.Sprintf("archive must contain exactly one video file, found %d", len(videos)), nil)
		}
		p.record.FileName = videos[0]
	}

	if desc.Title != "" {
		p.record.Title = desc.Title
	}
	return nil
}

// saveDataStage creates the package's public directory and writes the
// player document, including any images shipped inside an archive.
func (p *Package) saveDataStage(ctx context.Context) error {
	if err := os.MkdirAll(p.publicDir(), 0o755); err != nil {
		return media.NewPublishError(media.ErrCodeCreatePublicDir, "create public directory", err)
	}

	var images []string
	if p.record.IsArchive() {
		found, err := fileutil.ScanDir(p.record.PackageDir, "jpg", "jpeg", "png")
		if err != nil {
			return media.NewPublishError(media.ErrCodeScanForImages, "scan archive for images", err)
		}
		for _, image := range found {
			src := filepath.Join(p.record.PackageDir, image)
			dst := filepath.Join(p.publicDir(), image)
			if err := fileutil.CopyFile(src, dst); err != nil {
				return media.NewPublishError(media.ErrCodeScanForImages, "copy image to public directory", err)
			}
			images = append(images, image)
		}
	}

	data := packageData{
		ID:       p.record.ID,
		Title:    p.record.Title,
		Type:     p.record.PackageType,
		FileName: p.record.FileName,
		Images:   images,
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return media.NewPublishError(media.ErrCodeSavePackageData, "encode package data", err)
	}
	if err := os.WriteFile(filepath.Join(p.publicDir(), "package.json"), raw, 0o644); err != nil {
		return media.NewPublishError(media.ErrCodeSavePackageData, "write package data", err)
	}
	return nil
}

func (p *Package) getMetadataStage(ctx context.Context) error {
	meta, err := p.prober.Probe(ctx, p.mediaPath())
	if err != nil {
		return media.NewPublishError(media.ErrCodeGetMetadata, "probe media file", err)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return media.NewPublishError(media.ErrCodeGetMetadata, "encode media metadata", err)
	}
	p.record.MetadataJSON = string(raw)
	return nil
}

// generateThumbnailStage prefers a thumbnail shipped inside an archive and
// falls back to extracting a frame from the video.
func (p *Package) generateThumbnailStage(ctx context.Context) error {
	dst := filepath.Join(p.publicDir(), "thumbnail.jpg")

	shipped := filepath.Join(p.record.PackageDir, "thumbnail.jpg")
	if p.record.IsArchive() {
		if _, err := os.Stat(shipped); err == nil {
			if err := fileutil.CopyFile(shipped, dst); err != nil {
				return media.NewPublishError(media.ErrCodeCopyThumb, "copy shipped thumbnail", err)
			}
			p.record.ThumbnailPath = dst
			return nil
		}
	}

	offset := time.Duration(p.cfg.Tools.ThumbnailOffset) * time.Second
	if err := p.prober.Thumbnail(ctx, p.mediaPath(), dst, offset); err != nil {
		return media.NewPublishError(media.ErrCodeGenerateThumb, "generate thumbnail", err)
	}
	p.record.ThumbnailPath = dst
	return nil
}

// uploadHandler pushes the media to the target platform, or parks the
// package in waitingForUpload when no platform is configured. Parking keeps
// the checkpoint on this transition so an explicit upload resumes it.
func (p *Package) uploadHandler() fsm.Handler {
	return func(ctx context.Context) fsm.Outcome {
		target := p.record.Platform
		if target == "" {
			target = p.cfg.Publish.DefaultPlatform
		}
		if target == "" {
			p.record.State = media.StateWaitingForUpload
			if err := p.store.Update(ctx, p.record); err != nil {
				return fsm.Fail(media.NewPublishError(media.ErrCodeTransition, "persist waiting state", err))
			}
			p.logger.Info("package waiting for upload target",
				logging.String(logging.FieldPackageID, p.record.ID))
			return fsm.Park()
		}

		if err := p.begin(ctx, media.StateUploading); err != nil {
			return fsm.Fail(err)
		}

		provider, err := p.platforms.Get(target)
		if err != nil {
			return fsm.Fail(media.NewPublishError(media.ErrCodeMediaUpload, "resolve platform", err))
		}
		mediaID, err := provider.Upload(ctx, p.mediaPath(), platform.Metadata{
			Title:         p.record.Title,
			MimeType:      "video/mp4",
			ThumbnailPath: p.record.ThumbnailPath,
		})
		if err != nil {
			return fsm.Fail(media.NewPublishError(media.ErrCodeMediaUpload, "upload media", err))
		}
		p.record.Platform = target
		p.record.MediaID = mediaID

		if err := p.commit(ctx, media.StateUploaded, TransitionConfigure); err != nil {
			return fsm.Fail(err)
		}
		return fsm.Continue(TransitionConfigure)
	}
}

// configureStage verifies the platform can serve the uploaded media.
func (p *Package) configureStage(ctx context.Context) error {
	provider, err := p.platforms.Get(p.record.Platform)
	if err != nil {
		return media.NewPublishError(media.ErrCodeMediaConfigure, "resolve platform", err)
	}
	info, err := provider.Info(ctx, p.record.MediaID)
	if err != nil {
		return media.NewPublishError(media.ErrCodeMediaConfigure, "query uploaded media", err)
	}
	if !info.Available {
		return media.NewPublishError(media.ErrCodeMediaConfigure, "uploaded media is not available", nil)
	}
	return nil
}

// publishHandler cleans the staging directory and lands the package in its
// final state: ready, or published when auto-publish is on.
func (p *Package) publishHandler() fsm.Handler {
	return func(ctx context.Context) fsm.Outcome {
		if err := os.RemoveAll(p.record.PackageDir); err != nil {
			return fsm.Fail(media.NewPublishError(media.ErrCodeCleanDirectory, "clean staging directory", err))
		}

		final := media.StateReady
		if p.cfg.Publish.AutoPublish {
			final = media.StatePublished
		}
		if err := p.commit(ctx, final, ""); err != nil {
			return fsm.Fail(err)
		}
		return fsm.Done()
	}
}
