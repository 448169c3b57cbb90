package pipeline

import (
	"archive/tar"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"publishd/internal/config"
	"publishd/internal/fsm"
	"publishd/internal/media"
	"publishd/internal/mediaprobe"
	"publishd/internal/platform"
	"publishd/internal/testsupport"
)

type memStore struct {
	states []media.State
}

func (m *memStore) Update(ctx context.Context, rec *media.Record) error {
	m.states = append(m.states, rec.State)
	return nil
}

type fakeProber struct {
	probeCalls int
	thumbCalls int
	probeErr   error
}

func (f *fakeProber) Probe(ctx context.Context, path string) (mediaprobe.Metadata, error) {
	f.probeCalls++
	if f.probeErr != nil {
		return mediaprobe.Metadata{}, f.probeErr
	}
	return mediaprobe.Metadata{Duration: time.Minute, Width: 1280, Height: 720, VideoCodec: "h264"}, nil
}

func (f *fakeProber) Thumbnail(ctx context.Context, src, dst string, offset time.Duration) error {
	f.thumbCalls++
	return os.WriteFile(dst, []byte("jpeg"), 0o644)
}

type testEnv struct {
	cfg     *config.Config
	store   *memStore
	prober  *fakeProber
	factory *Factory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	registry, err := platform.NewRegistry(cfg)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	store := &memStore{}
	prober := &fakeProber{}
	return &testEnv{
		cfg:     cfg,
		store:   store,
		prober:  prober,
		factory: NewFactory(cfg, store, prober, registry, nil),
	}
}

func (e *testEnv) newRecord(t *testing.T, path string) *media.Record {
	t.Helper()
	rec := &media.Record{
		ID:           "pkg-" + filepath.Base(path),
		OriginalPath: path,
		PackageType:  media.PackageTypeOf(path),
		Title:        media.TitleOf(path),
		ErrorCode:    media.ErrCodeNone,
	}
	rec.SetCheckpoint(media.StateSubmitted, TransitionInit)
	return rec
}

func writeVideo(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testsupport.WriteFile(t, path, 512)
	return path
}

func writeArchive(t *testing.T, dir, name string, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	tw := tar.NewWriter(file)
	for entryName, body := range entries {
		header := &tar.Header{Name: entryName, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("write tar header: %v", err)
		}
		if _, err := tw.Write(body); err != nil {
			t.Fatalf("write tar body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return path
}

func TestVideoPackageRunsToReady(t *testing.T) {
	env := newTestEnv(t)
	src := writeVideo(t, t.TempDir(), "spring_lecture.mp4")
	rec := env.newRecord(t, src)

	pkg, err := env.factory.New(rec)
	if err != nil {
		t.Fatalf("factory.New returned error: %v", err)
	}

	result, err := pkg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != fsm.ResultDone {
		t.Fatalf("expected ResultDone, got %v", result)
	}
	if rec.State != media.StateReady {
		t.Fatalf("expected state ready, got %s", rec.State)
	}
	if rec.MediaID == "" {
		t.Fatal("expected media id after upload")
	}
	if rec.Platform != platform.PlatformLocal {
		t.Fatalf("expected platform local, got %q", rec.Platform)
	}
	if rec.ThumbnailPath == "" {
		t.Fatal("expected thumbnail path to be set")
	}

	if _, err := os.Stat(filepath.Join(env.cfg.Paths.PublicDir, rec.ID, "package.json")); err != nil {
		t.Fatalf("expected package.json in public directory: %v", err)
	}
	if _, err := os.Stat(rec.PackageDir); !os.IsNotExist(err) {
		t.Fatalf("expected staging directory to be cleaned, stat err: %v", err)
	}
	if env.prober.thumbCalls != 1 {
		t.Fatalf("expected 1 thumbnail extraction, got %d", env.prober.thumbCalls)
	}
}

func TestVideoPackagePublishesWhenAutoPublish(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Publish.AutoPublish = true
	src := writeVideo(t, t.TempDir(), "clip.mp4")
	rec := env.newRecord(t, src)

	pkg, err := env.factory.New(rec)
	if err != nil {
		t.Fatalf("factory.New returned error: %v", err)
	}
	if _, err := pkg.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rec.State != media.StatePublished {
		t.Fatalf("expected state published, got %s", rec.State)
	}
}

func TestArchivePackageUsesShippedDescriptorAndThumbnail(t *testing.T) {
	env := newTestEnv(t)
	src := writeArchive(t, t.TempDir(), "course.tar", map[string][]byte{
		"lecture.mp4":   []byte("video-bytes"),
		"info.json":     []byte(`{"filename": "lecture.mp4", "title": "Override Title"}`),
		"thumbnail.jpg": []byte("jpeg-bytes"),
		"slide1.png":    []byte("png-bytes"),
	})
	rec := env.newRecord(t, src)

	pkg, err := env.factory.New(rec)
	if err != nil {
		t.Fatalf("factory.New returned error: %v", err)
	}
	result, err := pkg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != fsm.ResultDone {
		t.Fatalf("expected ResultDone, got %v", result)
	}
	if rec.Title != "Override Title" {
		t.Fatalf("expected descriptor title override, got %q", rec.Title)
	}
	if rec.FileName != "lecture.mp4" {
		t.Fatalf("expected file name lecture.mp4, got %q", rec.FileName)
	}
	if env.prober.thumbCalls != 0 {
		t.Fatalf("expected shipped thumbnail to be used, ffmpeg called %d times", env.prober.thumbCalls)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.PublicDir, rec.ID, "slide1.png")); err != nil {
		t.Fatalf("expected archive image in public directory: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(env.cfg.Paths.PublicDir, rec.ID, "package.json"))
	if err != nil {
		t.Fatalf("read package data: %v", err)
	}
	var data packageData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode package data: %v", err)
	}
	if len(data.Images) != 1 || data.Images[0] != "slide1.png" {
		t.Fatalf("expected package data to list slide1.png, got %v", data.Images)
	}
}

func TestArchiveWithoutVideoFailsValidation(t *testing.T) {
	env := newTestEnv(t)
	src := writeArchive(t, t.TempDir(), "broken.tar", map[string][]byte{
		"notes.txt": []byte("no video here"),
	})
	rec := env.newRecord(t, src)

	pkg, err := env.factory.New(rec)
	if err != nil {
		t.Fatalf("factory.New returned error: %v", err)
	}
	result, err := pkg.Run(context.Background())
	if result != fsm.ResultFailed {
		t.Fatalf("expected ResultFailed, got %v", result)
	}
	if code := media.CodeOf(err); code != media.ErrCodeValidation {
		t.Fatalf("expected validation error code, got %s", code)
	}
}

func TestUploadParksWithoutPlatformAndResumes(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Publish.DefaultPlatform = ""
	src := writeVideo(t, t.TempDir(), "parked.mp4")
	rec := env.newRecord(t, src)

	pkg, err := env.factory.New(rec)
	if err != nil {
		t.Fatalf("factory.New returned error: %v", err)
	}
	result, err := pkg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != fsm.ResultParked {
		t.Fatalf("expected ResultParked, got %v", result)
	}
	if rec.State != media.StateWaitingForUpload {
		t.Fatalf("expected state waitingForUpload, got %s", rec.State)
	}
	if rec.LastState != media.StateThumbnailGenerated || rec.LastTransition != TransitionUpload {
		t.Fatalf("expected checkpoint at (thumbnailGenerated, upload), got (%s, %s)",
			rec.LastState, rec.LastTransition)
	}

	probesBefore := env.prober.probeCalls

	// An explicit upload target resumes the parked package at the
	// checkpoint without redoing earlier stages.
	rec.Platform = platform.PlatformLocal
	rec.State = media.StatePending
	resumed, err := env.factory.New(rec)
	if err != nil {
		t.Fatalf("factory.New returned error: %v", err)
	}
	result, err = resumed.Run(context.Background())
	if err != nil {
		t.Fatalf("resumed Run returned error: %v", err)
	}
	if result != fsm.ResultDone {
		t.Fatalf("expected ResultDone after resume, got %v", result)
	}
	if rec.State != media.StateReady {
		t.Fatalf("expected state ready, got %s", rec.State)
	}
	if env.prober.probeCalls != probesBefore {
		t.Fatalf("expected resume to skip metadata stage, probe calls went %d -> %d",
			probesBefore, env.prober.probeCalls)
	}
}

func TestMetadataFailureCarriesCode(t *testing.T) {
	env := newTestEnv(t)
	env.prober.probeErr = os.ErrPermission
	src := writeVideo(t, t.TempDir(), "unreadable.mp4")
	rec := env.newRecord(t, src)

	pkg, err := env.factory.New(rec)
	if err != nil {
		t.Fatalf("factory.New returned error: %v", err)
	}
	_, err = pkg.Run(context.Background())
	if code := media.CodeOf(err); code != media.ErrCodeGetMetadata {
		t.Fatalf("expected get metadata error code, got %s", code)
	}
}

func TestFactoryRejectsUnknownPackageType(t *testing.T) {
	env := newTestEnv(t)
	rec := env.newRecord(t, filepath.Join(t.TempDir(), "bundle.zip"))

	_, err := env.factory.New(rec)
	if err == nil {
		t.Fatal("expected error for unsupported package type")
	}
	if code := media.CodeOf(err); code != media.ErrCodeInvalidPackageType {
		t.Fatalf("expected invalid package type error code, got %s", code)
	}
}

func TestMissingSourceFailsInit(t *testing.T) {
	env := newTestEnv(t)
	rec := env.newRecord(t, filepath.Join(t.TempDir(), "gone.mp4"))

	pkg, err := env.factory.New(rec)
	if err != nil {
		t.Fatalf("factory.New returned error: %v", err)
	}
	_, err = pkg.Run(context.Background())
	if code := media.CodeOf(err); code != media.ErrCodeCopy {
		t.Fatalf("expected copy error code, got %s", code)
	}
}
