package manager

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"publishd/internal/config"
	"publishd/internal/fsm"
	"publishd/internal/media"
	"publishd/internal/pipeline"
	"publishd/internal/store"
	"publishd/internal/testsupport"
)

type runOutcome struct {
	result fsm.Result
	state  media.State
	err    error
}

// scriptedRunner blocks inside Run until the test releases it with an
// outcome, which lets tests pin packages inside the pending set.
type scriptedRunner struct {
	rec     *media.Record
	started chan struct{}
	release chan runOutcome
	store   Store
}

func (r *scriptedRunner) Record() *media.Record { return r.rec }

func (r *scriptedRunner) Run(ctx context.Context) (fsm.Result, error) {
	close(r.started)
	select {
	case out := <-r.release:
		if out.state != "" {
			r.rec.State = out.state
			r.rec.LastState = out.state
			_ = r.store.Update(context.Background(), r.rec)
		}
		return out.result, out.err
	case <-ctx.Done():
		return fsm.ResultFailed, ctx.Err()
	}
}

type scriptedFactory struct {
	mu      sync.Mutex
	store   Store
	runners map[string]*scriptedRunner
}

func newScriptedFactory(st Store) *scriptedFactory {
	return &scriptedFactory{store: st, runners: make(map[string]*scriptedRunner)}
}

func (f *scriptedFactory) New(rec *media.Record) (Runner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	runner := &scriptedRunner{
		rec:     rec,
		started: make(chan struct{}),
		release: make(chan runOutcome, 1),
		store:   f.store,
	}
	f.runners[rec.OriginalPath] = runner
	return runner, nil
}

func (f *scriptedFactory) runner(path string) *scriptedRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runners[path]
}

func waitStarted(t *testing.T, runner *scriptedRunner) {
	t.Helper()
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("package %s never started", runner.rec.ID)
	}
}

func assertNotStarted(t *testing.T, runner *scriptedRunner) {
	t.Helper()
	select {
	case <-runner.started:
		t.Fatalf("package %s started while the bound was saturated", runner.rec.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Kind == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

type managerFixture struct {
	cfg     *config.Config
	store   *store.Store
	factory *scriptedFactory
	manager *Manager
}

func newFixture(t *testing.T, maxConcurrent int) *managerFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(maxConcurrent))
	st := testsupport.MustOpenStore(t, cfg)

	factory := newScriptedFactory(st)
	mgr := New(cfg, st, factory, nil)
	mgr.Start(context.Background())
	t.Cleanup(mgr.Close)

	return &managerFixture{cfg: cfg, store: st, factory: factory, manager: mgr}
}

func (f *managerFixture) submit(t *testing.T, name string) *media.Record {
	t.Helper()
	path := filepath.Join(f.cfg.Paths.WatchDir, name)
	testsupport.WriteFile(t, path, 64)
	rec, err := f.manager.Publish(context.Background(), Descriptor{OriginalPath: path})
	require.NoError(t, err)
	return rec
}

func TestPublishBoundsConcurrencyAndPreservesFIFO(t *testing.T) {
	f := newFixture(t, 2)

	p1 := f.submit(t, "one.mp4")
	p2 := f.submit(t, "two.mp4")
	p3 := f.submit(t, "three.mp4")

	r1 := f.factory.runner(p1.OriginalPath)
	r2 := f.factory.runner(p2.OriginalPath)
	r3 := f.factory.runner(p3.OriginalPath)

	waitStarted(t, r1)
	waitStarted(t, r2)
	assertNotStarted(t, r3)
	require.Equal(t, 2, f.manager.PendingCount())
	require.Equal(t, 1, f.manager.WaitingCount())

	// Releasing a slot promotes the queue head.
	r1.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
	waitStarted(t, r3)
	require.Equal(t, 0, f.manager.WaitingCount())

	r2.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
	r3.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
}

func TestQueueDrainsInSubmissionOrder(t *testing.T) {
	f := newFixture(t, 1)

	p1 := f.submit(t, "a.mp4")
	p2 := f.submit(t, "b.mp4")
	p3 := f.submit(t, "c.mp4")

	r1 := f.factory.runner(p1.OriginalPath)
	waitStarted(t, r1)
	r1.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}

	r2 := f.factory.runner(p2.OriginalPath)
	waitStarted(t, r2)
	assertNotStarted(t, f.factory.runner(p3.OriginalPath))
	r2.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}

	r3 := f.factory.runner(p3.OriginalPath)
	waitStarted(t, r3)
	r3.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
}

func TestPublishIsIdempotentPerPath(t *testing.T) {
	f := newFixture(t, 2)

	first := f.submit(t, "same.mp4")
	r := f.factory.runner(first.OriginalPath)
	waitStarted(t, r)

	again, err := f.manager.Publish(context.Background(), Descriptor{OriginalPath: first.OriginalPath})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, 1, f.manager.PendingCount())

	r.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
}

func TestPublishRejectsUnknownExtension(t *testing.T) {
	f := newFixture(t, 2)

	path := filepath.Join(f.cfg.Paths.WatchDir, "bundle.zip")
	testsupport.WriteFile(t, path, 8)

	_, err := f.manager.Publish(context.Background(), Descriptor{OriginalPath: path})
	require.Error(t, err)
	require.Equal(t, media.ErrCodeInvalidPackageType, media.CodeOf(err))

	rec, err := f.store.FindByOriginalPath(context.Background(), path)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestErrorEventCarriesCodeAndPackageID(t *testing.T) {
	f := newFixture(t, 1)
	events, cancel := f.manager.Subscribe()
	defer cancel()

	rec := f.submit(t, "doomed.mp4")
	r := f.factory.runner(rec.OriginalPath)
	waitStarted(t, r)

	cause := media.NewPublishError(media.ErrCodeExtract, "extract archive", errors.New("bad tar"))
	r.release <- runOutcome{result: fsm.ResultFailed, err: cause}

	event := waitEvent(t, events, EventError)
	require.Equal(t, media.ErrCodeExtract, event.Code)
	require.Contains(t, event.Record.ErrorMessage, rec.ID)
	require.Equal(t, media.StateError, event.Record.State)

	stored, err := f.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, media.StateError, stored.State)
	require.Equal(t, media.ErrCodeExtract, stored.ErrorCode)
}

func TestCompleteEventEmitted(t *testing.T) {
	f := newFixture(t, 1)
	events, cancel := f.manager.Subscribe()
	defer cancel()

	rec := f.submit(t, "done.mp4")
	r := f.factory.runner(rec.OriginalPath)
	waitStarted(t, r)
	r.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}

	event := waitEvent(t, events, EventComplete)
	require.Equal(t, rec.ID, event.Record.ID)
	require.Equal(t, media.StateReady, event.Record.State)
}

func TestParkReleasesSlotForQueuedPackage(t *testing.T) {
	f := newFixture(t, 1)
	events, cancel := f.manager.Subscribe()
	defer cancel()

	p1 := f.submit(t, "parked.mp4")
	p2 := f.submit(t, "queued.mp4")

	r1 := f.factory.runner(p1.OriginalPath)
	waitStarted(t, r1)
	r1.release <- runOutcome{result: fsm.ResultParked, state: media.StateWaitingForUpload}

	waitEvent(t, events, EventParked)
	r2 := f.factory.runner(p2.OriginalPath)
	waitStarted(t, r2)
	r2.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
}

func TestRetryRequiresErrorStateUnlessForced(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.submit(t, "fine.mp4")
	r := f.factory.runner(rec.OriginalPath)
	waitStarted(t, r)
	r.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}

	// Wait for the slot to drain before poking at the record.
	require.Eventually(t, func() bool { return f.manager.PendingCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.manager.Retry(context.Background(), rec.ID, false))
	stored, err := f.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, media.StateReady, stored.State)
}

func TestRetryResumesFailedPackage(t *testing.T) {
	f := newFixture(t, 1)
	events, cancel := f.manager.Subscribe()
	defer cancel()

	rec := f.submit(t, "flaky.mp4")
	r := f.factory.runner(rec.OriginalPath)
	waitStarted(t, r)
	r.release <- runOutcome{
		result: fsm.ResultFailed,
		err:    media.NewPublishError(media.ErrCodeCopy, "copy package into staging", errors.New("disk full")),
	}
	waitEvent(t, events, EventError)

	require.NoError(t, f.manager.Retry(context.Background(), rec.ID, false))
	waitEvent(t, events, EventRetry)

	retried := f.factory.runner(rec.OriginalPath)
	waitStarted(t, retried)
	require.Equal(t, media.StatePending, retried.rec.State)
	require.Equal(t, media.ErrCodeNone, retried.rec.ErrorCode)
	retried.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
}

func TestRetryUnknownPackage(t *testing.T) {
	f := newFixture(t, 1)

	err := f.manager.Retry(context.Background(), "missing-id", false)
	require.Error(t, err)
	require.Equal(t, media.ErrCodePackageNotFound, media.CodeOf(err))
}

func TestRetryAllSweepsOnlyUnstableRecords(t *testing.T) {
	f := newFixture(t, 3)

	seed := func(name string, state media.State) *media.Record {
		path := filepath.Join(f.cfg.Paths.WatchDir, name)
		rec := testsupport.NewRecord(t, f.store, "seed-"+name, path, pipeline.TransitionInit)
		rec.State = state
		require.NoError(t, f.store.Update(context.Background(), rec))
		return rec
	}

	stranded := seed("stranded.mp4", media.StateCopying)
	seed("failed.mp4", media.StateError)
	seed("waiting.mp4", media.StateWaitingForUpload)
	seed("served.mp4", media.StateReady)

	require.NoError(t, f.manager.RetryAll(context.Background()))

	r := f.factory.runner(stranded.OriginalPath)
	require.NotNil(t, r, "expected the in-flight record to be resumed")
	waitStarted(t, r)
	require.Nil(t, f.factory.runner(filepath.Join(f.cfg.Paths.WatchDir, "failed.mp4")))
	require.Nil(t, f.factory.runner(filepath.Join(f.cfg.Paths.WatchDir, "waiting.mp4")))
	require.Nil(t, f.factory.runner(filepath.Join(f.cfg.Paths.WatchDir, "served.mp4")))

	r.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
}

func TestUploadResumesParkedPackage(t *testing.T) {
	f := newFixture(t, 1)
	events, cancel := f.manager.Subscribe()
	defer cancel()

	rec := f.submit(t, "waiting.mp4")
	r := f.factory.runner(rec.OriginalPath)
	waitStarted(t, r)
	r.release <- runOutcome{result: fsm.ResultParked, state: media.StateWaitingForUpload}
	waitEvent(t, events, EventParked)

	require.NoError(t, f.manager.Upload(context.Background(), rec.ID, "local"))
	waitEvent(t, events, EventUpload)

	resumed := f.factory.runner(rec.OriginalPath)
	waitStarted(t, resumed)
	require.Equal(t, "local", resumed.rec.Platform)
	resumed.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}

	stored, err := f.store.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, "local", stored.Platform)
}

func TestUploadRejectsNonWaitingPackage(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.submit(t, "busy.mp4")
	r := f.factory.runner(rec.OriginalPath)
	waitStarted(t, r)

	err := f.manager.Upload(context.Background(), rec.ID, "local")
	require.Error(t, err)

	r.release <- runOutcome{result: fsm.ResultDone, state: media.StateReady}
}

func TestUploadUnknownPackage(t *testing.T) {
	f := newFixture(t, 1)

	err := f.manager.Upload(context.Background(), "missing-id", "local")
	require.Error(t, err)
	require.Equal(t, media.ErrCodePackageNotFound, media.CodeOf(err))
}
