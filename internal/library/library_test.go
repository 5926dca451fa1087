package library

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"clipy/host/internal/model"
)

func newTestLibrary(t *testing.T) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(filepath.Join(t.TempDir(), "library.db"), logger)
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func completedRecord(url, title, path string) model.DownloadRecord {
	return model.DownloadRecord{
		ID:       "d1",
		URL:      url,
		Title:    title,
		FilePath: path,
		FileSize: 42 << 20,
		Status:   model.StatusCompleted,
		Options:  model.DownloadOption{Format: "mp4", Quality: "1080"},
	}
}

func TestRecordCompletedAndList(t *testing.T) {
	lib := newTestLibrary(t)

	rec := completedRecord("https://www.youtube.com/watch?v=dQw4w9WgXcQ", "First", "/dl/first.mp4")
	if err := lib.RecordCompleted(rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	rec2 := completedRecord("https://youtu.be/abc123def45", "Second", "/dl/second.mp4")
	if err := lib.RecordCompleted(rec2); err != nil {
		t.Fatalf("record: %v", err)
	}

	videos, err := lib.List(0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("library size = %d, want 2", len(videos))
	}
	if videos[0].Title != "Second" {
		t.Fatalf("newest first violated: %q", videos[0].Title)
	}
	if videos[1].VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("video id = %q", videos[1].VideoID)
	}

	hist, err := lib.History(0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history size = %d, want 2", len(hist))
	}
}

func TestRecordFailedAppendsHistoryOnly(t *testing.T) {
	lib := newTestLibrary(t)

	rec := model.DownloadRecord{
		ID:        "d2",
		URL:       "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Title:     "Broken",
		Status:    model.StatusFailed,
		Error:     "connection reset",
		ErrorCode: "network_error",
	}
	if err := lib.RecordFailed(rec); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	videos, err := lib.List(0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(videos) != 0 {
		t.Fatalf("failed attempt must not enter the library, got %d entries", len(videos))
	}

	hist, err := lib.History(0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history size = %d, want 1", len(hist))
	}
	if hist[0].Status != string(model.StatusFailed) || hist[0].Error != "connection reset" {
		t.Fatalf("history row = %+v", hist[0])
	}
}

func TestRecordCompletedUpsertsSameFile(t *testing.T) {
	lib := newTestLibrary(t)

	rec := completedRecord("https://www.youtube.com/watch?v=dQw4w9WgXcQ", "Old Title", "/dl/video.mp4")
	if err := lib.RecordCompleted(rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	rec.Title = "New Title"
	if err := lib.RecordCompleted(rec); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	videos, _ := lib.List(0, 0)
	if len(videos) != 1 {
		t.Fatalf("re-download of the same file duplicated the entry: %d rows", len(videos))
	}
	if videos[0].Title != "New Title" {
		t.Fatalf("title = %q, want the updated one", videos[0].Title)
	}

	// The same video to a different file is a separate entry.
	rec.FilePath = "/dl/video-720.mp4"
	if err := lib.RecordCompleted(rec); err != nil {
		t.Fatalf("record other file: %v", err)
	}
	videos, _ = lib.List(0, 0)
	if len(videos) != 2 {
		t.Fatalf("distinct files should coexist, got %d rows", len(videos))
	}
}

func TestSearchMatchesTitleSubstring(t *testing.T) {
	lib := newTestLibrary(t)
	lib.RecordCompleted(completedRecord("https://youtu.be/aaa11111111", "Go Concurrency Patterns", "/dl/a.mp4"))
	lib.RecordCompleted(completedRecord("https://youtu.be/bbb22222222", "Cooking Pasta", "/dl/b.mp4"))

	hits, err := lib.Search("concurrency", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "Go Concurrency Patterns" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits, _ := lib.Search("zzz", 0); len(hits) != 0 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestRenameAndDelete(t *testing.T) {
	lib := newTestLibrary(t)
	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(mediaPath, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	lib.RecordCompleted(completedRecord("https://youtu.be/aaa11111111", "Title", mediaPath))

	videos, _ := lib.List(0, 0)
	got, err := lib.Rename(videos[0].ID, "Renamed")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got.Title != "Renamed" {
		t.Fatalf("title = %q", got.Title)
	}

	if err := lib.Delete(videos[0].ID, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(mediaPath); !os.IsNotExist(err) {
		t.Fatal("media file should be deleted")
	}
	if _, err := lib.Get(videos[0].ID); err != ErrNotFound {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if err := lib.Delete(videos[0].ID, false); err != ErrNotFound {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	lib := newTestLibrary(t)
	if st, err := lib.Stats(); err != nil || st.TotalVideos != 0 || st.TotalSize != 0 {
		t.Fatalf("empty stats = %+v, err %v", st, err)
	}

	lib.RecordCompleted(completedRecord("https://youtu.be/aaa11111111", "A", "/dl/a.mp4"))
	lib.RecordCompleted(completedRecord("https://youtu.be/bbb22222222", "B", "/dl/b.mp4"))

	st, err := lib.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalVideos != 2 {
		t.Fatalf("total videos = %d", st.TotalVideos)
	}
	if st.TotalSize != 2*(42<<20) {
		t.Fatalf("total size = %d", st.TotalSize)
	}
}
