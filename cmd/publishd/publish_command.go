package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"publishd/internal/config"
	"publishd/internal/manager"
	"publishd/internal/media"
	"publishd/internal/mediaprobe"
	"publishd/internal/pipeline"
	"publishd/internal/platform"
	"publishd/internal/store"
)

// factoryAdapter mirrors the daemon wiring for one-shot commands.
type factoryAdapter struct {
	factory *pipeline.Factory
}

func (a factoryAdapter) New(rec *media.Record) (manager.Runner, error) {
	return a.factory.New(rec)
}

// withManager builds a short-lived manager for a one-shot operation. It
// refuses to run while the daemon holds the instance lock, since two
// processes draining the same queue would race.
func withManager(ctx *commandContext, fn func(runCtx context.Context, cfg *config.Config, mgr *manager.Manager, events <-chan manager.Event) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "publishd.lock"))
	held, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !held {
		return errors.New("the publishd daemon is running; drop files into the watch directory or stop the daemon first")
	}
	defer lock.Unlock()

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := platform.NewRegistry(cfg)
	if err != nil {
		return err
	}
	prober := mediaprobe.NewCLI(
		mediaprobe.WithBinaries(cfg.FFmpegBinary(), cfg.FFprobeBinary()),
		mediaprobe.WithTimeout(time.Duration(cfg.Tools.CommandTimeout)*time.Second),
	)
	factory := pipeline.NewFactory(cfg, st, prober, registry, nil)

	mgr := manager.New(cfg, st, factoryAdapter{factory: factory}, nil)
	runCtx := context.Background()
	mgr.Start(runCtx)
	defer mgr.Close()

	events, unsubscribe := mgr.Subscribe()
	defer unsubscribe()

	return fn(runCtx, cfg, mgr, events)
}

// awaitOutcome blocks until the package reaches a terminal event or leaves
// the manager without one (a no-op operation).
func awaitOutcome(cmd *cobra.Command, mgr *manager.Manager, events <-chan manager.Event, id string) error {
	out := cmd.OutOrStdout()
	for {
		select {
		case event := <-events:
			if event.Record.ID != id {
				continue
			}
			switch event.Kind {
			case manager.EventComplete:
				fmt.Fprintf(out, "Package %s is %s\n", id, event.Record.State)
				return nil
			case manager.EventParked:
				fmt.Fprintf(out, "Package %s is waiting for an upload target.\n", id)
				fmt.Fprintf(out, "Resume it with: publishd upload %s <platform>\n", id)
				return nil
			case manager.EventError:
				return fmt.Errorf("publication failed (%s): %w", event.Code, event.Err)
			}
		case <-time.After(200 * time.Millisecond):
			if !mgr.Active(id) {
				return nil
			}
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	}
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var platformFlag string
	var titleFlag string

	cmd := &cobra.Command{
		Use:   "publish FILE",
		Short: "Publish a media package now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return withManager(ctx, func(runCtx context.Context, cfg *config.Config, mgr *manager.Manager, events <-chan manager.Event) error {
				rec, err := mgr.Publish(runCtx, manager.Descriptor{
					OriginalPath: path,
					Platform:     platformFlag,
					Title:        titleFlag,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s as package %s\n", path, rec.ID)
				return awaitOutcome(cmd, mgr, events, rec.ID)
			})
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "Target platform (default from config)")
	cmd.Flags().StringVar(&titleFlag, "title", "", "Override the derived title")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "retry ID",
		Short: "Retry a failed package from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(ctx, func(runCtx context.Context, cfg *config.Config, mgr *manager.Manager, events <-chan manager.Event) error {
				if err := mgr.Retry(runCtx, args[0], force); err != nil {
					return err
				}
				return awaitOutcome(cmd, mgr, events, args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Retry even when the package is not in the error state")
	return cmd
}

func newRetryAllCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-all",
		Short: "Resume every package stranded mid-pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(ctx, func(runCtx context.Context, cfg *config.Config, mgr *manager.Manager, events <-chan manager.Event) error {
				if err := mgr.RetryAll(runCtx); err != nil {
					return err
				}
				return drainAll(cmd, mgr, events)
			})
		},
	}
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload ID PLATFORM",
		Short: "Resume a package waiting for an upload target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(ctx, func(runCtx context.Context, cfg *config.Config, mgr *manager.Manager, events <-chan manager.Event) error {
				if err := mgr.Upload(runCtx, args[0], args[1]); err != nil {
					return err
				}
				return awaitOutcome(cmd, mgr, events, args[0])
			})
		},
	}
}

// drainAll waits for the manager to go idle, reporting events as they
// arrive. Used by retry-all where several packages may be in flight.
func drainAll(cmd *cobra.Command, mgr *manager.Manager, events <-chan manager.Event) error {
	out := cmd.OutOrStdout()
	var failed int
	for {
		select {
		case event := <-events:
			switch event.Kind {
			case manager.EventComplete:
				fmt.Fprintf(out, "Package %s is %s\n", event.Record.ID, event.Record.State)
			case manager.EventParked:
				fmt.Fprintf(out, "Package %s is waiting for an upload target\n", event.Record.ID)
			case manager.EventError:
				failed++
				fmt.Fprintf(out, "Package %s failed: %v\n", event.Record.ID, event.Err)
			}
		case <-time.After(200 * time.Millisecond):
			if mgr.PendingCount() == 0 && mgr.WaitingCount() == 0 {
				if failed > 0 {
					return fmt.Errorf("%d package(s) failed", failed)
				}
				return nil
			}
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	}
}
