package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipy/host/internal/auth"
	"clipy/host/internal/download"
	"clipy/host/internal/editor"
	"clipy/host/internal/engine"
	"clipy/host/internal/events"
	"clipy/host/internal/model"
	"clipy/host/internal/platform"
	"clipy/host/internal/settings"
	"clipy/host/internal/store"

	"github.com/gin-gonic/gin"
)

const testPairingKey = "test-pairing-key"

type testEnv struct {
	router    *gin.Engine
	token     string
	downloads *download.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	paths, err := platform.NewPaths(t.TempDir())
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	settingsSvc, err := settings.NewService(paths.ConfigFile(), logger)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	hub := events.NewHub()
	registry := engine.NewProcessRegistry()
	mock := engine.NewMockDownloader()
	downloadSvc := download.NewService(store.NewDownloadStore(), hub, mock, registry, settingsSvc, nil, logger)
	t.Cleanup(downloadSvc.Close)
	editorSvc := editor.NewService(paths.ProjectsDir(), logger)
	exporter := editor.NewExporter(engine.NewMockMediaEngine(), hub, logger)

	authSvc, err := auth.NewService(testPairingKey, "test-secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	srv := NewServer(Deps{
		Auth:      authSvc,
		Downloads: downloadSvc,
		Editor:    editorSvc,
		Exporter:  exporter,
		Media:     engine.NewMockMediaEngine(),
		Library:   nil,
		Settings:  settingsSvc,
		Paths:     paths,
		Hub:       hub,
		Log:       logger,
	})
	env := &testEnv{router: srv.Router(), downloads: downloadSvc}

	body := env.do(t, "POST", "/api/v1/auth/pair", "", map[string]any{
		"pairing_key": testPairingKey,
		"client_name": "test-ui",
	}, http.StatusOK)
	data := body["data"].(map[string]any)
	env.token = data["access_token"].(string)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any, wantStatus int) map[string]any {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s = %d, want %d; body %s", method, path, w.Code, wantStatus, w.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response of %s %s: %v", method, path, err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	body := env.do(t, "GET", "/api/v1/healthz", "", nil, http.StatusOK)
	if body["success"] != true {
		t.Fatalf("envelope = %v", body)
	}
	if body["trace_id"] == "" {
		t.Fatal("missing trace id")
	}
}

func TestAuthRequiredOnProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)
	body := env.do(t, "GET", "/api/v1/downloads", "", nil, http.StatusUnauthorized)
	if body["success"] != false {
		t.Fatalf("envelope = %v", body)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "unauthorized" {
		t.Fatalf("code = %v", errObj["code"])
	}
}

func TestPairRejectsWrongKey(t *testing.T) {
	env := newTestEnv(t)
	body := env.do(t, "POST", "/api/v1/auth/pair", "", map[string]any{
		"pairing_key": "wrong",
	}, http.StatusUnauthorized)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "invalid_pairing_key" {
		t.Fatalf("code = %v", errObj["code"])
	}
}

func TestDownloadLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	body := env.do(t, "POST", "/api/v1/downloads", env.token, map[string]any{
		"url": "https://www.youtube.com/watch?v=abc123def45",
		"options": map[string]any{
			"output_dir": t.TempDir(),
		},
	}, http.StatusCreated)
	rec := body["data"].(map[string]any)
	id := rec["id"].(string)
	if rec["status"] != "pending" {
		t.Fatalf("queued status = %v", rec["status"])
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("download never completed over HTTP")
		}
		body = env.do(t, "GET", "/api/v1/downloads/"+id, env.token, nil, http.StatusOK)
		if body["data"].(map[string]any)["status"] == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	body = env.do(t, "GET", "/api/v1/downloads?filter=completed", env.token, nil, http.StatusOK)
	list := body["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("completed list = %d entries", len(list))
	}

	// Pause on a completed download is a state conflict.
	body = env.do(t, "POST", "/api/v1/downloads/"+id+"/pause", env.token, nil, http.StatusConflict)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "invalid_state" {
		t.Fatalf("code = %v", errObj["code"])
	}

	body = env.do(t, "POST", "/api/v1/downloads/clear-completed", env.token, nil, http.StatusOK)
	if body["data"].(map[string]any)["cleared"].(float64) != 1 {
		t.Fatalf("cleared = %v", body["data"])
	}
	body = env.do(t, "GET", "/api/v1/downloads/history", env.token, nil, http.StatusOK)
	if len(body["data"].([]any)) != 1 {
		t.Fatal("cleared download missing from history")
	}
}

func TestStartDownloadRejectsBadURL(t *testing.T) {
	env := newTestEnv(t)
	body := env.do(t, "POST", "/api/v1/downloads", env.token, map[string]any{
		"url": "ftp://example.com/file",
	}, http.StatusBadRequest)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "invalid_url" {
		t.Fatalf("code = %v", errObj["code"])
	}
}

func TestUnknownDownloadIs404(t *testing.T) {
	env := newTestEnv(t)
	body := env.do(t, "GET", "/api/v1/downloads/nope", env.token, nil, http.StatusNotFound)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "not_found" {
		t.Fatalf("code = %v", errObj["code"])
	}
}

func TestVideoInfoAndStreams(t *testing.T) {
	env := newTestEnv(t)

	body := env.do(t, "POST", "/api/v1/videos/info", env.token, map[string]any{
		"url": "https://www.youtube.com/watch?v=abc123def45",
	}, http.StatusOK)
	info := body["data"].(map[string]any)
	if info["title"] != "Mock Video" {
		t.Fatalf("title = %v", info["title"])
	}

	body = env.do(t, "POST", "/api/v1/videos/streams", env.token, map[string]any{
		"url": "https://www.youtube.com/watch?v=abc123def45",
	}, http.StatusOK)
	streams := body["data"].(map[string]any)
	if streams["dual_stream"] != true {
		t.Fatalf("streams = %v", streams)
	}
}

func TestEditorProjectFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	body := env.do(t, "POST", "/api/v1/editor/projects", env.token, map[string]any{
		"name": "My Cut",
	}, http.StatusCreated)
	project := body["data"].(map[string]any)
	projectID := project["id"].(string)
	tracks := project["tracks"].([]any)
	if len(tracks) != 2 {
		t.Fatalf("seeded tracks = %d", len(tracks))
	}
	trackID := tracks[0].(map[string]any)["id"].(string)

	body = env.do(t, "POST", "/api/v1/editor/projects/"+projectID+"/clips", env.token, map[string]any{
		"track_id":    trackID,
		"name":        "clip",
		"source_path": "/media/a.mp4",
		"start_time":  0,
		"duration":    10,
	}, http.StatusOK)
	updated := body["data"].(map[string]any)
	if updated["duration"].(float64) != 10 {
		t.Fatalf("duration = %v", updated["duration"])
	}
	clipID := updated["tracks"].([]any)[0].(map[string]any)["clips"].([]any)[0].(map[string]any)["id"].(string)

	body = env.do(t, "POST", "/api/v1/editor/projects/"+projectID+"/clips/"+clipID+"/split", env.token, map[string]any{
		"at": 4,
	}, http.StatusOK)
	clips := body["data"].(map[string]any)["tracks"].([]any)[0].(map[string]any)["clips"].([]any)
	if len(clips) != 2 {
		t.Fatalf("clips after split = %d", len(clips))
	}

	body = env.do(t, "POST", "/api/v1/editor/projects/"+projectID+"/undo", env.token, nil, http.StatusOK)
	undone := body["data"].(map[string]any)
	if undone["applied"] != true {
		t.Fatal("undo not applied")
	}

	body = env.do(t, "POST", "/api/v1/editor/projects/"+projectID+"/save", env.token, nil, http.StatusOK)
	savedPath := body["data"].(map[string]any)["path"].(string)
	if filepath.Ext(savedPath) != ".json" {
		t.Fatalf("saved path = %q", savedPath)
	}
}

func TestExportOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	body := env.do(t, "POST", "/api/v1/editor/projects", env.token, map[string]any{"name": "x"}, http.StatusCreated)
	projectID := body["data"].(map[string]any)["id"].(string)

	env.do(t, "POST", "/api/v1/editor/projects/"+projectID+"/export", env.token, map[string]any{
		"output_path": "/out/final.mp4",
		"format":      "mp4",
		"width":       1920,
		"height":      1080,
		"frame_rate":  30,
	}, http.StatusAccepted)

	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("export never completed")
		}
		body = env.do(t, "GET", "/api/v1/editor/projects/"+projectID+"/export", env.token, nil, http.StatusOK)
		if body["data"].(map[string]any)["state"] == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSettingsKeyRoundTripOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	body := env.do(t, "GET", "/api/v1/settings/keys/download.defaultQuality", env.token, nil, http.StatusOK)
	if body["data"].(map[string]any)["value"] != "1080" {
		t.Fatalf("default quality = %v", body["data"])
	}

	env.do(t, "PUT", "/api/v1/settings/keys/download.defaultQuality", env.token, map[string]any{
		"value": "720",
	}, http.StatusOK)
	body = env.do(t, "GET", "/api/v1/settings/keys/download.defaultQuality", env.token, nil, http.StatusOK)
	if body["data"].(map[string]any)["value"] != "720" {
		t.Fatalf("updated quality = %v", body["data"])
	}

	body = env.do(t, "GET", "/api/v1/settings/keys/download.noSuchKey", env.token, nil, http.StatusNotFound)
	if body["error"].(map[string]any)["code"] != "not_found" {
		t.Fatalf("unknown key error = %v", body["error"])
	}
}

func TestSSEBacklogReplay(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.downloads.Start(context.Background(), "https://www.youtube.com/watch?v=abc123def45", model.DownloadOption{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		got, _ := env.downloads.Get(rec.ID)
		if got.Status == model.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("download never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	req := httptest.NewRequest("GET", "/api/v1/downloads/events?from_seq=0", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	out := w.Body.String()
	for _, want := range []string{"event: download_queued", "event: download_started", "event: download_completed", "id: "} {
		if !strings.Contains(out, want) {
			t.Fatalf("SSE backlog missing %q in:\n%s", want, out)
		}
	}
}
