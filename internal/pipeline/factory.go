package pipeline

import (
	"fmt"
	"log/slog"

	"publishd/internal/config"
	"publishd/internal/fsm"
	"publishd/internal/logging"
	"publishd/internal/media"
	"publishd/internal/mediaprobe"
	"publishd/internal/platform"
)

// Factory builds the right package variant for a record.
type Factory struct {
	cfg       *config.Config
	store     Store
	prober    mediaprobe.Prober
	platforms *platform.Registry
	logger    *slog.Logger
}

// NewFactory wires the collaborators every package shares.
func NewFactory(cfg *config.Config, store Store, prober mediaprobe.Prober, platforms *platform.Registry, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Factory{
		cfg:       cfg,
		store:     store,
		prober:    prober,
		platforms: platforms,
		logger:    logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// New returns a package whose transition table matches the record's type.
func (f *Factory) New(rec *media.Record) (*Package, error) {
	pkg := &Package{
		record:    rec,
		cfg:       f.cfg,
		store:     f.store,
		prober:    f.prober,
		platforms: f.platforms,
		logger:    f.logger,
	}

	var transitions []fsm.Transition
	switch rec.PackageType {
	case media.TypeArchive:
		transitions = append(pkg.archiveTransitions(), pkg.tailTransitions()...)
	case media.TypeVideo:
		transitions = append(pkg.videoTransitions(), pkg.tailTransitions()...)
	default:
		return nil, media.NewPublishError(media.ErrCodeInvalidPackageType,
			fmt.Sprintf("no pipeline for package type %q", rec.PackageType), nil)
	}

	machine, err := fsm.New(transitions...)
	if err != nil {
		return nil, media.NewPublishError(media.ErrCodeTransition, "build state machine", err)
	}
	pkg.machine = machine
	return pkg, nil
}
