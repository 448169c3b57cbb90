// Package hotfolder watches the drop directory and submits settled media
// files for publication. A file is settled once its size stops changing
// for the configured number of poll rounds, which keeps half-copied
// uploads out of the pipeline.
package hotfolder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"publishd/internal/config"
	"publishd/internal/logging"
	"publishd/internal/manager"
	"publishd/internal/media"
)

type observation struct {
	size    int64
	stable  int
	ignored bool
}

// Submitter accepts publication requests. Satisfied by *manager.Manager.
type Submitter interface {
	Publish(ctx context.Context, desc manager.Descriptor) (*media.Record, error)
}

// Watcher polls the watch directory on a fixed interval.
type Watcher struct {
	cfg     *config.Config
	manager Submitter
	logger  *slog.Logger

	interval time.Duration
	settle   int

	seen map[string]*observation
}

// New constructs a watcher over the configured watch directory.
func New(cfg *config.Config, mgr Submitter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Workflow.WatchPollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	settle := 1
	if cfg.Workflow.WatchPollInterval > 0 {
		settle = cfg.Workflow.WatchSettleSeconds / cfg.Workflow.WatchPollInterval
	}
	if settle < 1 {
		settle = 1
	}
	return &Watcher{
		cfg:      cfg,
		manager:  mgr,
		logger:   logging.NewComponentLogger(logger, "hotfolder"),
		interval: interval,
		settle:   settle,
		seen:     make(map[string]*observation),
	}
}

// Run polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watching for packages",
		logging.String("dir", w.cfg.Paths.WatchDir),
		logging.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan runs one poll round: track sizes, submit files that settled, and
// forget entries whose files disappeared.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Paths.WatchDir)
	if err != nil {
		w.logger.Error("read watch directory", logging.Error(err))
		return
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !w.cfg.AcceptsExtension(media.PackageTypeOf(entry.Name())) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		name := entry.Name()
		present[name] = true

		obs, ok := w.seen[name]
		if !ok {
			w.seen[name] = &observation{size: info.Size()}
			continue
		}
		if obs.ignored {
			continue
		}
		if info.Size() != obs.size {
			obs.size = info.Size()
			obs.stable = 0
			continue
		}
		obs.stable++
		if obs.stable >= w.settle {
			w.submit(ctx, name)
			obs.ignored = true
		}
	}

	for name := range w.seen {
		if !present[name] {
			delete(w.seen, name)
		}
	}
}

func (w *Watcher) submit(ctx context.Context, name string) {
	path := filepath.Join(w.cfg.Paths.WatchDir, name)
	rec, err := w.manager.Publish(ctx, manager.Descriptor{OriginalPath: path})
	if err != nil {
		w.logger.Error("submit package", logging.String("path", path), logging.Error(err))
		return
	}
	w.logger.Info("package picked up",
		logging.String(logging.FieldPackageID, rec.ID),
		logging.String("path", path))
}
