// Package pipeline drives a single media package through its publication
// stages. Each package type contributes its own transition table; the
// shared handlers persist a checkpoint after every committed stage so an
// interrupted package resumes where it stopped instead of starting over.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"publishd/internal/config"
	"publishd/internal/fsm"
	"publishd/internal/logging"
	"publishd/internal/media"
	"publishd/internal/mediaprobe"
	"publishd/internal/platform"
)

// Transition names shared by both package variants.
const (
	TransitionInit              = "init"
	TransitionCopy              = "copy"
	TransitionExtract           = "extract"
	TransitionValidate          = "validate"
	TransitionSaveData          = "saveData"
	TransitionGetMetadata       = "getMetadata"
	TransitionGenerateThumbnail = "generateThumbnail"
	TransitionUpload            = "upload"
	TransitionConfigure         = "configure"
	TransitionPublish           = "publish"
)

// Store is the narrow persistence surface the pipeline needs.
type Store interface {
	Update(ctx context.Context, rec *media.Record) error
}

// Package binds one record to its state machine and collaborators.
type Package struct {
	record    *media.Record
	machine   *fsm.Machine
	cfg       *config.Config
	store     Store
	prober    mediaprobe.Prober
	platforms *platform.Registry
	logger    *slog.Logger
}

// Record exposes the package's record to the owner.
func (p *Package) Record() *media.Record { return p.record }

// Run resumes the machine from the record's checkpoint and drives it until
// it finishes, parks, or fails. Failures are always *media.PublishError.
func (p *Package) Run(ctx context.Context) (fsm.Result, error) {
	ctx = logging.WithPackageID(ctx, p.record.ID)
	p.machine.Init(string(p.record.LastState), p.record.LastTransition)
	result, err := p.machine.Run(ctx)
	if err != nil {
		var perr *media.PublishError
		if !errors.As(err, &perr) {
			err = media.NewPublishError(media.ErrCodeTransition, "transition failed", err)
		}
	}
	return result, err
}

// begin marks the record as being inside a stage and persists it so the
// in-flight state is visible to observers.
func (p *Package) begin(ctx context.Context, state media.State) error {
	p.record.State = state
	if err := p.store.Update(ctx, p.record); err != nil {
		return media.NewPublishError(media.ErrCodeTransition, "persist stage start", err)
	}
	p.logger.Info("stage started",
		logging.String(logging.FieldPackageID, p.record.ID),
		logging.String(logging.FieldState, string(state)))
	return nil
}

// commit writes the post-stage checkpoint: the stable state reached and the
// transition to run next on resume.
func (p *Package) commit(ctx context.Context, state media.State, next string) error {
	p.record.SetCheckpoint(state, next)
	if err := p.store.Update(ctx, p.record); err != nil {
		return media.NewPublishError(media.ErrCodeTransition, "persist checkpoint", err)
	}
	p.logger.Info("stage committed",
		logging.String(logging.FieldPackageID, p.record.ID),
		logging.String(logging.FieldState, string(state)),
		logging.String(logging.FieldTransition, next))
	return nil
}

// step wraps a stage body with the begin/commit bookkeeping common to every
// straight-through transition.
func (p *Package) step(running, done media.State, next string, body func(ctx context.Context) error) fsm.Handler {
	return func(ctx context.Context) fsm.Outcome {
		if err := p.begin(ctx, running); err != nil {
			return fsm.Fail(err)
		}
		if err := body(ctx); err != nil {
			return fsm.Fail(err)
		}
		if err := p.commit(ctx, done, next); err != nil {
			return fsm.Fail(err)
		}
		return fsm.Continue(next)
	}
}

func (p *Package) archiveTransitions() []fsm.Transition {
	return []fsm.Transition{
		{
			Name: TransitionInit, From: string(media.StateSubmitted), To: string(media.StatePending),
			Handler: p.step(media.StateSubmitted, media.StatePending, TransitionCopy, p.initStage),
		},
		{
			Name: TransitionCopy, From: string(media.StatePending), To: string(media.StateCopied),
			Handler: p.step(media.StateCopying, media.StateCopied, TransitionExtract, p.copyStage),
		},
		{
			Name: TransitionExtract, From: string(media.StateCopied), To: string(media.StateExtracted),
			Handler: p.step(media.StateExtracting, media.StateExtracted, TransitionValidate, p.extractStage),
		},
		{
			Name: TransitionValidate, From: string(media.StateExtracted), To: string(media.StateValidated),
			Handler: p.step(media.StateValidating, media.StateValidated, TransitionSaveData, p.validateStage),
		},
		{
			Name: TransitionSaveData, From: string(media.StateValidated), To: string(media.StateSaved),
			Handler: p.step(media.StateSaving, media.StateSaved, TransitionGetMetadata, p.saveDataStage),
		},
	}
}

func (p *Package) videoTransitions() []fsm.Transition {
	return []fsm.Transition{
		{
			Name: TransitionInit, From: string(media.StateSubmitted), To: string(media.StatePending),
			Handler: p.step(media.StateSubmitted, media.StatePending, TransitionCopy, p.initStage),
		},
		{
			Name: TransitionCopy, From: string(media.StatePending), To: string(media.StateCopied),
			Handler: p.step(media.StateCopying, media.StateCopied, TransitionSaveData, p.copyStage),
		},
		{
			Name: TransitionSaveData, From: string(media.StateCopied), To: string(media.StateSaved),
			Handler: p.step(media.StateSaving, media.StateSaved, TransitionGetMetadata, p.saveDataStage),
		},
	}
}

// tailTransitions covers the stages shared by every package type once a
// playable file is staged.
func (p *Package) tailTransitions() []fsm.Transition {
	return []fsm.Transition{
		{
			Name: TransitionGetMetadata, From: string(media.StateSaved), To: string(media.StateMetadataRetrieved),
			Handler: p.step(media.StateGettingMetadata, media.StateMetadataRetrieved, TransitionGenerateThumbnail, p.getMetadataStage),
		},
		{
			Name: TransitionGenerateThumbnail, From: string(media.StateMetadataRetrieved), To: string(media.StateThumbnailGenerated),
			Handler: p.step(media.StateGeneratingThumbnail, media.StateThumbnailGenerated, TransitionUpload, p.generateThumbnailStage),
		},
		{
			Name: TransitionUpload, From: string(media.StateThumbnailGenerated), To: string(media.StateUploaded),
			Handler: p.uploadHandler(),
		},
		{
			Name: TransitionConfigure, From: string(media.StateUploaded), To: string(media.StateConfigured),
			Handler: p.step(media.StateConfiguring, media.StateConfigured, TransitionPublish, p.configureStage),
		},
		{
			Name: TransitionPublish, From: string(media.StateConfigured), To: string(media.StateReady),
			Handler: p.publishHandler(),
		},
	}
}
