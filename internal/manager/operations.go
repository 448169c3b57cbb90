package manager

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"publishd/internal/logging"
	"publishd/internal/media"
	"publishd/internal/pipeline"
)

// Descriptor is a submission request.
type Descriptor struct {
	// OriginalPath is the media file to publish. Deduplication key.
	OriginalPath string
	// Platform optionally names the target platform. Empty means the
	// configured default, or park in waitingForUpload when none is set.
	Platform string
	// Title optionally overrides the title derived from the file name.
	Title string
}

// Publish validates the descriptor, records the package and admits it.
// Submitting a path that already has a record is a no-op returning the
// existing record.
func (m *Manager) Publish(ctx context.Context, desc Descriptor) (*media.Record, error) {
	if desc.OriginalPath == "" {
		return nil, media.NewPublishError(media.ErrCodeInvalidConfig, "original path is required", nil)
	}
	path := filepath.Clean(desc.OriginalPath)

	packageType := media.PackageTypeOf(path)
	if !m.cfg.AcceptsExtension(packageType) {
		return nil, media.NewPublishError(media.ErrCodeInvalidPackageType,
			fmt.Sprintf("extension %q is not an accepted package type", packageType), nil)
	}

	if existing, err := m.store.FindByOriginalPath(ctx, path); err != nil {
		return nil, fmt.Errorf("look up package by path: %w", err)
	} else if existing != nil {
		m.logger.Info("package already known, submission ignored",
			logging.String(logging.FieldPackageID, existing.ID),
			logging.String("path", path))
		return existing, nil
	}

	rec := &media.Record{
		ID:           uuid.NewString(),
		OriginalPath: path,
		PackageType:  packageType,
		Title:        media.TitleOf(path),
		Platform:     desc.Platform,
		ErrorCode:    media.ErrCodeNone,
	}
	if desc.Title != "" {
		rec.Title = desc.Title
	}
	rec.SetCheckpoint(media.StateSubmitted, pipeline.TransitionInit)

	if err := m.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("record package: %w", err)
	}

	runner, err := m.factory.New(rec)
	if err != nil {
		m.failPackage(rec, err)
		return nil, err
	}

	m.logger.Info("package submitted",
		logging.String(logging.FieldPackageID, rec.ID),
		logging.String("path", path),
		logging.String("package_type", packageType))
	m.admit(runner)
	return rec, nil
}

// Retry re-admits a failed package from its checkpoint. Without force only
// packages in the error state are retried; anything else is a no-op.
func (m *Manager) Retry(ctx context.Context, id string, force bool) error {
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("look up package: %w", err)
	}
	if rec == nil {
		return media.NewPublishError(media.ErrCodePackageNotFound,
			fmt.Sprintf("no package with id %s", id), nil)
	}

	if rec.State != media.StateError && !force {
		m.logger.Info("retry ignored, package is not in error",
			logging.String(logging.FieldPackageID, id),
			logging.String(logging.FieldState, string(rec.State)))
		return nil
	}
	if m.Active(id) {
		m.logger.Info("retry ignored, package is already active",
			logging.String(logging.FieldPackageID, id))
		return nil
	}

	rec.ClearError()
	rec.State = media.StatePending
	if err := m.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("reset package for retry: %w", err)
	}

	runner, err := m.factory.New(rec)
	if err != nil {
		m.failPackage(rec, err)
		return err
	}

	m.emit(Event{Kind: EventRetry, Record: *rec, Code: media.ErrCodeNone})
	m.logger.Info("package retrying",
		logging.String(logging.FieldPackageID, id),
		logging.String(logging.FieldTransition, rec.LastTransition))
	m.admit(runner)
	return nil
}

// RetryAll resumes every record stranded outside the stable states. It is
// the crash-recovery sweep run at daemon startup.
func (m *Manager) RetryAll(ctx context.Context) error {
	stranded, err := m.store.ListExcluding(ctx, media.StableStates()...)
	if err != nil {
		return fmt.Errorf("list stranded packages: %w", err)
	}
	for _, rec := range stranded {
		if err := m.Retry(ctx, rec.ID, true); err != nil {
			m.logger.Error("retry sweep failed for package",
				logging.String(logging.FieldPackageID, rec.ID),
				logging.Error(err))
		}
	}
	if len(stranded) > 0 {
		m.logger.Info("retry sweep finished", logging.Int("packages", len(stranded)))
	}
	return nil
}

// Upload resumes a package parked in waitingForUpload with an explicit
// target platform.
func (m *Manager) Upload(ctx context.Context, id, platformName string) error {
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("look up package: %w", err)
	}
	if rec == nil {
		return media.NewPublishError(media.ErrCodePackageNotFound,
			fmt.Sprintf("no package with id %s", id), nil)
	}
	if rec.State != media.StateWaitingForUpload {
		return fmt.Errorf("package %s is not waiting for upload (state %s)", id, rec.State)
	}

	rec.Platform = platformName
	rec.State = media.StatePending
	if err := m.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("set package platform: %w", err)
	}

	runner, err := m.factory.New(rec)
	if err != nil {
		m.failPackage(rec, err)
		return err
	}

	m.emit(Event{Kind: EventUpload, Record: *rec, Code: media.ErrCodeNone})
	m.logger.Info("package resuming with platform",
		logging.String(logging.FieldPackageID, id),
		logging.String("platform", platformName))
	m.admit(runner)
	return nil
}

// Active reports whether the package holds a slot or sits in the queue.
func (m *Manager) Active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[id]; ok {
		return true
	}
	for _, runner := range m.waiting {
		if runner.Record().ID == id {
			return true
		}
	}
	return false
}
