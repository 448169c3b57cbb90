package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"publishd/internal/config"
	"publishd/internal/hotfolder"
	"publishd/internal/manager"
	"publishd/internal/mediaprobe"
	"publishd/internal/notifications"
	"publishd/internal/pipeline"
	"publishd/internal/platform"
	"publishd/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)

	registry, err := platform.NewRegistry(cfg)
	require.NoError(t, err)

	factory := pipeline.NewFactory(cfg, st, mediaprobe.NewCLI(), registry, nil)
	mgr := manager.New(cfg, st, factoryAdapter{factory: factory}, nil)
	watcher := hotfolder.New(cfg, mgr, nil)

	d, err := New(cfg, st, mgr, watcher, notifications.NewService(cfg), nil)
	require.NoError(t, err)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	require.NoError(t, d.Start(context.Background()))
	require.True(t, d.Running())
	d.Stop()
	require.False(t, d.Running())
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first := newDaemon(t, cfg)
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop()

	second := newDaemon(t, cfg)
	err := second.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")
}

func TestDaemonRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := New(cfg, nil, nil, nil, nil, nil)
	require.Error(t, err)
}
