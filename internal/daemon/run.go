package daemon

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"publishd/internal/config"
	"publishd/internal/deps"
	"publishd/internal/hotfolder"
	"publishd/internal/logging"
	"publishd/internal/manager"
	"publishd/internal/mediaprobe"
	"publishd/internal/notifications"
	"publishd/internal/pipeline"
	"publishd/internal/platform"
	"publishd/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run wires the full daemon and blocks until the context is cancelled or
// a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.NewForPath(level, cfg.Logging.Format, cfg.Paths.LogDir, "publishd.log")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	for _, status := range statuses {
		logger.Info("dependency",
			logging.String("name", status.Name),
			logging.Bool("available", status.Available),
			logging.String("detail", status.Detail))
	}
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
	}

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open package store: %w", err)
	}
	defer st.Close()

	registry, err := platform.NewRegistry(cfg)
	if err != nil {
		return fmt.Errorf("configure platforms: %w", err)
	}
	if s3, err := registry.Get(platform.PlatformS3); err == nil {
		ensureCtx, ensureCancel := context.WithTimeout(signalCtx, 30*time.Second)
		err := s3.(*platform.S3).EnsureBucket(ensureCtx)
		ensureCancel()
		if err != nil {
			return fmt.Errorf("prepare s3 bucket: %w", err)
		}
	}

	prober := mediaprobe.NewCLI(
		mediaprobe.WithBinaries(cfg.FFmpegBinary(), cfg.FFprobeBinary()),
		mediaprobe.WithTimeout(time.Duration(cfg.Tools.CommandTimeout)*time.Second),
	)

	factory := pipeline.NewFactory(cfg, st, prober, registry, logger)
	mgr := manager.New(cfg, st, factoryAdapter{factory: factory}, logger)
	watcher := hotfolder.New(cfg, mgr, logger)
	notifier := notifications.NewService(cfg)

	daemon, err := New(cfg, st, mgr, watcher, notifier, logger)
	if err != nil {
		return err
	}
	if err := daemon.Start(signalCtx); err != nil {
		return err
	}
	defer daemon.Stop()

	logger.Info("publishd running",
		logging.String("watch_dir", cfg.Paths.WatchDir),
		logging.Int("max_concurrent", cfg.Publish.MaxConcurrent))

	<-signalCtx.Done()
	logger.Info("shutdown signal received")
	return nil
}
