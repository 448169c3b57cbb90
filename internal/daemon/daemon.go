// Package daemon assembles the long-running publishd process: single
// instance locking, the publish manager, the hotfolder watcher, and the
// notification bridge.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"publishd/internal/config"
	"publishd/internal/hotfolder"
	"publishd/internal/logging"
	"publishd/internal/manager"
	"publishd/internal/media"
	"publishd/internal/notifications"
	"publishd/internal/pipeline"
	"publishd/internal/store"
)

// factoryAdapter lets the manager consume the pipeline factory through its
// narrow Runner interface.
type factoryAdapter struct {
	factory *pipeline.Factory
}

func (a factoryAdapter) New(rec *media.Record) (manager.Runner, error) {
	return a.factory.New(rec)
}

// Daemon owns the background services and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	manager  *manager.Manager
	watcher  *hotfolder.Watcher
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, mgr *manager.Manager, watcher *hotfolder.Watcher, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || mgr == nil || watcher == nil {
		return nil, errors.New("daemon requires config, store, manager, and watcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "publishd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		manager:  mgr,
		watcher:  watcher,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, runs the recovery sweep, and launches
// the watcher and the notification bridge.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another publishd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	d.manager.Start(runCtx)

	events, unsubscribe := d.manager.Subscribe()
	go func() {
		defer close(d.done)
		d.forwardEvents(runCtx, events)
	}()

	// Resume anything a previous process left mid-pipeline.
	if err := d.manager.RetryAll(runCtx); err != nil {
		d.logger.Error("startup recovery sweep", logging.Error(err))
	}

	go func() {
		d.watcher.Run(runCtx)
		unsubscribe()
	}()

	d.running.Store(true)
	d.logger.Info("publishd daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels background work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.manager.Close()
	<-d.done
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("publishd daemon stopped")
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// forwardEvents turns manager events into notifications.
func (d *Daemon) forwardEvents(ctx context.Context, events <-chan manager.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.notify(ctx, event)
		}
	}
}

func (d *Daemon) notify(ctx context.Context, event manager.Event) {
	var err error
	switch event.Kind {
	case manager.EventComplete:
		err = d.notifier.NotifyPublished(ctx, event.Record)
	case manager.EventParked:
		err = d.notifier.NotifyWaitingForUpload(ctx, event.Record)
	case manager.EventError:
		err = d.notifier.NotifyError(ctx, event.Record, event.Code)
	default:
		return
	}
	if err != nil {
		d.logger.Warn("deliver notification",
			logging.String(logging.FieldEventType, event.Kind.String()),
			logging.Error(err))
	}
}
