package settings

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	svc, err := NewService(path, slog.Default())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.saveDelay = 20 * time.Millisecond
	return svc
}

func TestDefaultsWrittenOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := NewService(path, slog.Default()); err != nil {
		t.Fatalf("new service: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config.json not written: %v", err)
	}
	var doc AppSettings
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse config.json: %v", err)
	}
	if doc.Download.DefaultQuality != "1080" || doc.Download.DefaultFormat != "mp4" {
		t.Fatalf("unexpected download defaults: %+v", doc.Download)
	}
	if doc.Download.MaxConcurrentDownloads != 3 {
		t.Fatalf("max concurrent = %d, want 3", doc.Download.MaxConcurrentDownloads)
	}
}

func TestGetAndUpdateKey(t *testing.T) {
	svc := newTestService(t)

	v, err := svc.GetKey("download.defaultQuality")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if v != "1080" {
		t.Fatalf("defaultQuality = %v, want 1080", v)
	}

	if err := svc.UpdateKey("download.defaultQuality", "720"); err != nil {
		t.Fatalf("update key: %v", err)
	}
	if got := svc.Get().Download.DefaultQuality; got != "720" {
		t.Fatalf("defaultQuality after update = %q, want 720", got)
	}

	if err := svc.UpdateKey("appearance.theme", "dark"); err != nil {
		t.Fatalf("update theme: %v", err)
	}
	if got := svc.Get().Appearance.Theme; got != "dark" {
		t.Fatalf("theme = %q, want dark", got)
	}
}

func TestUpdateKeyUnknown(t *testing.T) {
	svc := newTestService(t)
	if err := svc.UpdateKey("download.noSuchKey", 1); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if err := svc.UpdateKey("noSuchSection.x", 1); err == nil {
		t.Fatalf("expected error for unknown section")
	}
}

func TestDebouncedSaveCoalesces(t *testing.T) {
	svc := newTestService(t)

	for _, q := range []string{"480", "720", "2160"} {
		if err := svc.UpdateKey("download.defaultQuality", q); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		raw, err := os.ReadFile(svc.path)
		if err == nil {
			var doc AppSettings
			if json.Unmarshal(raw, &doc) == nil && doc.Download.DefaultQuality == "2160" {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("debounced save did not land the final value")
}

func TestFlushWritesPendingChanges(t *testing.T) {
	svc := newTestService(t)
	svc.saveDelay = time.Hour

	if err := svc.UpdateKey("general.language", "de"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	raw, err := os.ReadFile(svc.path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var doc AppSettings
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if doc.General.Language != "de" {
		t.Fatalf("language = %q, want de", doc.General.Language)
	}
}

func TestImportKeepsDefaultsForAbsentKeys(t *testing.T) {
	svc := newTestService(t)
	if err := svc.Import([]byte(`{"download":{"defaultFormat":"mkv"}}`)); err != nil {
		t.Fatalf("import: %v", err)
	}
	doc := svc.Get()
	if doc.Download.DefaultFormat != "mkv" {
		t.Fatalf("format = %q, want mkv", doc.Download.DefaultFormat)
	}
	if doc.Download.AudioFormat != "m4a" {
		t.Fatalf("audioFormat lost its default: %q", doc.Download.AudioFormat)
	}
}
