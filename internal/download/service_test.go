package download

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clipy/host/internal/engine"
	"clipy/host/internal/events"
	"clipy/host/internal/model"
	"clipy/host/internal/settings"
	"clipy/host/internal/store"
)

type recordedLibrary struct {
	mu     sync.Mutex
	recs   []model.DownloadRecord
	failed []model.DownloadRecord
}

func (r *recordedLibrary) RecordCompleted(rec model.DownloadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *recordedLibrary) RecordFailed(rec model.DownloadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, rec)
	return nil
}

func (r *recordedLibrary) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

func (r *recordedLibrary) failedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed)
}

func newTestService(t *testing.T, dl engine.Downloader) (*Service, *recordedLibrary) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := settings.NewService(filepath.Join(t.TempDir(), "config.json"), logger)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	lib := &recordedLibrary{}
	svc := NewService(store.NewDownloadStore(), events.NewHub(), dl, engine.NewProcessRegistry(), cfg, lib, logger)
	t.Cleanup(svc.Close)
	return svc, lib
}

func waitForStatus(t *testing.T, svc *Service, id string, want model.DownloadStatus) model.DownloadRecord {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := svc.Get(id)
		if err == nil && rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec, _ := svc.Get(id)
	t.Fatalf("download %s never reached %s, last status %s", id, want, rec.Status)
	return model.DownloadRecord{}
}

func TestStartRunsToCompletion(t *testing.T) {
	mock := engine.NewMockDownloader()
	svc, lib := newTestService(t, mock)

	rec, err := svc.Start(context.Background(), "https://www.youtube.com/watch?v=abc123def45", model.DownloadOption{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.Status != model.StatusPending {
		t.Fatalf("queued status = %s, want pending", rec.Status)
	}

	done := waitForStatus(t, svc, rec.ID, model.StatusCompleted)
	if done.Progress != 100 {
		t.Fatalf("completed progress = %v, want 100", done.Progress)
	}
	if filepath.Base(done.FilePath) != "Mock Video.mp4" {
		t.Fatalf("file path = %q", done.FilePath)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed record missing CompletedAt")
	}

	completed := svc.List(model.FilterCompleted)
	if len(completed) != 1 || completed[0].ID != rec.ID {
		t.Fatalf("completed filter = %+v", completed)
	}
	if lib.count() != 1 {
		t.Fatalf("library recorded %d downloads, want 1", lib.count())
	}
}

func TestStartRejectsInvalidURL(t *testing.T) {
	svc, _ := newTestService(t, engine.NewMockDownloader())
	if _, err := svc.Start(context.Background(), "notaurl", model.DownloadOption{}); err != ErrInvalidURL {
		t.Fatalf("err = %v, want ErrInvalidURL", err)
	}
	if _, err := svc.Start(context.Background(), "ftp://example.com/x", model.DownloadOption{}); err != ErrInvalidURL {
		t.Fatalf("err = %v, want ErrInvalidURL", err)
	}
}

func TestCancelMidFlight(t *testing.T) {
	mock := engine.NewMockDownloader()
	mock.StepDelay = 50 * time.Millisecond
	svc, lib := newTestService(t, mock)

	rec, err := svc.Start(context.Background(), "https://youtu.be/abc123def45", model.DownloadOption{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, svc, rec.ID, model.StatusDownloading)

	got := svc.Cancel(rec.ID)
	if got.Status != model.StatusCancelled {
		t.Fatalf("cancel status = %s", got.Status)
	}

	// Give the runner time to exit; the record must stay cancelled.
	time.Sleep(5 * mock.StepDelay)
	final, _ := svc.Get(rec.ID)
	if final.Status != model.StatusCancelled {
		t.Fatalf("status after runner exit = %s, want cancelled", final.Status)
	}
	if lib.count() != 0 {
		t.Fatal("cancelled download reached the library")
	}
}

func TestAdmissionRespectsConcurrencyLimit(t *testing.T) {
	mock := engine.NewMockDownloader()
	mock.StepDelay = 60 * time.Millisecond
	svc, _ := newTestService(t, mock)

	dir := t.TempDir()
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		rec, err := svc.Start(context.Background(), "https://www.youtube.com/watch?v=abc123def45", model.DownloadOption{OutputDir: dir})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		ids = append(ids, rec.ID)
	}

	// Default limit is 3; while the first batch runs, at most 3 are active.
	deadline := time.Now().Add(2 * time.Second)
	sawActive := false
	for time.Now().Before(deadline) {
		active := 0
		pending := 0
		for _, id := range ids {
			rec, _ := svc.Get(id)
			if rec.Status.IsActive() {
				active++
			}
			if rec.Status == model.StatusPending {
				pending++
			}
		}
		if active > 3 {
			t.Fatalf("active = %d, limit 3", active)
		}
		if active == 3 && pending == 2 {
			sawActive = true
		}
		allDone := true
		for _, id := range ids {
			rec, _ := svc.Get(id)
			if !rec.Status.IsTerminal() {
				allDone = false
			}
		}
		if allDone {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !sawActive {
		t.Fatal("never observed a full queue with 3 active and 2 pending")
	}
	for _, id := range ids {
		waitForStatus(t, svc, id, model.StatusCompleted)
	}
}

func TestPauseResume(t *testing.T) {
	mock := engine.NewMockDownloader()
	mock.StepDelay = 50 * time.Millisecond
	svc, _ := newTestService(t, mock)

	rec, err := svc.Start(context.Background(), "https://www.youtube.com/watch?v=abc123def45", model.DownloadOption{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, svc, rec.ID, model.StatusDownloading)

	paused := svc.Pause(rec.ID)
	if paused.Status != model.StatusPaused {
		t.Fatalf("pause status = %s", paused.Status)
	}
	time.Sleep(5 * mock.StepDelay)
	if got, _ := svc.Get(rec.ID); got.Status != model.StatusPaused {
		t.Fatalf("status after pause = %s", got.Status)
	}

	resumed := svc.Resume(rec.ID)
	if resumed.Status != model.StatusPending {
		t.Fatalf("resume status = %s", resumed.Status)
	}
	waitForStatus(t, svc, rec.ID, model.StatusCompleted)
}

func TestFailureRecordsErrorCode(t *testing.T) {
	mock := engine.NewMockDownloader()
	mock.FailWith = &engine.Error{Kind: engine.KindUnsupportedSite, Message: "unsupported url", Retryable: false}
	svc, lib := newTestService(t, mock)

	// Keep the scheduler out of the picture; manual retry is under test.
	cfg := svc.settings.Get()
	cfg.Download.AutoRetry = false
	svc.settings.Update(cfg)

	rec, err := svc.Start(context.Background(), "https://example.com/watch", model.DownloadOption{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	failed := waitForStatus(t, svc, rec.ID, model.StatusFailed)
	if failed.ErrorCode != engine.KindUnsupportedSite {
		t.Fatalf("error code = %q", failed.ErrorCode)
	}
	if failed.Error == "" {
		t.Fatal("failed record missing error message")
	}
	if lib.failedCount() != 1 || lib.count() != 0 {
		t.Fatalf("history rows = %d failed / %d completed, want 1/0", lib.failedCount(), lib.count())
	}

	retried := svc.Retry(rec.ID)
	if retried.Status != model.StatusPending {
		t.Fatalf("retry status = %s", retried.Status)
	}
	if retried.Error != "" || retried.ErrorCode != "" || retried.Progress != 0 {
		t.Fatalf("retry did not reset attempt state: %+v", retried)
	}
	waitForStatus(t, svc, rec.ID, model.StatusFailed)
}

func TestResolveOptionsFillsDefaults(t *testing.T) {
	svc, _ := newTestService(t, engine.NewMockDownloader())

	got := svc.resolveOptions(model.DownloadOption{})
	if got.Quality != "1080" || got.Format != "mp4" {
		t.Fatalf("quality/format = %q/%q", got.Quality, got.Format)
	}
	if !got.EmbedThumbnail || !got.EmbedMetadata {
		t.Fatal("zero options should take embed defaults")
	}
	if !got.NoPlaylist {
		t.Fatal("zero options should default to single video")
	}
	if got.OutputTemplate != "%(title)s.%(ext)s" {
		t.Fatalf("template = %q", got.OutputTemplate)
	}

	// Explicit options keep their values and only blanks are filled.
	got = svc.resolveOptions(model.DownloadOption{Quality: "720", AudioOnly: true})
	if got.Quality != "720" {
		t.Fatalf("quality = %q, want 720", got.Quality)
	}
	if got.AudioFormat != "m4a" || got.AudioBitrate != "192" {
		t.Fatalf("audio defaults = %q/%q", got.AudioFormat, got.AudioBitrate)
	}
	if got.EmbedThumbnail {
		t.Fatal("partial options must not inherit embed flags")
	}
}

func TestEventStreamCarriesLifecycle(t *testing.T) {
	mock := engine.NewMockDownloader()
	svc, _ := newTestService(t, mock)

	rec, err := svc.Start(context.Background(), "https://www.youtube.com/watch?v=abc123def45", model.DownloadOption{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, svc, rec.ID, model.StatusCompleted)

	evts := svc.ListEventsFrom(0)
	types := map[model.DownloadEventType]bool{}
	for _, e := range evts {
		if e.DownloadID == rec.ID {
			types[e.Type] = true
		}
	}
	for _, want := range []model.DownloadEventType{
		model.EventDownloadQueued,
		model.EventDownloadStarted,
		model.EventDownloadProgress,
		model.EventDownloadCompleted,
	} {
		if !types[want] {
			t.Fatalf("event stream missing %s, got %v", want, types)
		}
	}
}

func TestStallWatchdogFlagsSilentDownloads(t *testing.T) {
	svc, _ := newTestService(t, engine.NewMockDownloader())
	svc.stallAfter = 10 * time.Millisecond

	rec := svc.store.Add("https://www.youtube.com/watch?v=abc123def45", model.DownloadOption{})
	svc.store.MarkStarted(rec.ID)
	svc.store.UpdateProgress(model.DownloadProgress{ID: rec.ID, Progress: 5})

	time.Sleep(30 * time.Millisecond)
	svc.checkStalls()

	got, _ := svc.Get(rec.ID)
	if got.Status != model.StatusStalled {
		t.Fatalf("status after silent interval = %s, want stalled", got.Status)
	}
	evts := svc.ListEventsFrom(0)
	found := false
	for _, e := range evts {
		if e.Type == model.EventDownloadStalled && e.DownloadID == rec.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("stall event not published")
	}

	// A fresh progress snapshot recovers the record.
	svc.store.UpdateProgress(model.DownloadProgress{ID: rec.ID, Progress: 6})
	got, _ = svc.Get(rec.ID)
	if got.Status != model.StatusDownloading {
		t.Fatalf("status after recovery = %s", got.Status)
	}
}

func TestDeleteStopsAndRemoves(t *testing.T) {
	mock := engine.NewMockDownloader()
	mock.StepDelay = 50 * time.Millisecond
	svc, _ := newTestService(t, mock)

	rec, err := svc.Start(context.Background(), "https://www.youtube.com/watch?v=abc123def45", model.DownloadOption{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, svc, rec.ID, model.StatusDownloading)

	if !svc.Delete(rec.ID, false) {
		t.Fatal("delete returned false for a live download")
	}
	if _, err := svc.Get(rec.ID); err != store.ErrNotFound {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if svc.Delete(rec.ID, false) {
		t.Fatal("second delete should be a no-op")
	}
}

func TestGetStreamingInfoPrefersMuxedOrDualStream(t *testing.T) {
	svc, _ := newTestService(t, engine.NewMockDownloader())

	info, err := svc.GetStreamingInfo(context.Background(), "https://www.youtube.com/watch?v=abc123def45")
	if err != nil {
		t.Fatalf("streaming info: %v", err)
	}
	// The mock's best playable video is the 1080p video-only stream, so a
	// separate audio URL must come along.
	if !info.DualStream {
		t.Fatal("expected dual stream selection")
	}
	if info.VideoURL != "https://cdn.mock/1080v.mp4" || info.AudioURL != "https://cdn.mock/audio.m4a" {
		t.Fatalf("selected %q + %q", info.VideoURL, info.AudioURL)
	}
}
