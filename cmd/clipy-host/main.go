package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"clipy/host/internal/api"
	"clipy/host/internal/auth"
	"clipy/host/internal/config"
	"clipy/host/internal/download"
	"clipy/host/internal/editor"
	"clipy/host/internal/engine"
	"clipy/host/internal/events"
	"clipy/host/internal/library"
	"clipy/host/internal/platform"
	"clipy/host/internal/settings"
	"clipy/host/internal/store"
	"clipy/host/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := telemetry.NewLogger(cfg.Debug)

	root, err := platform.DefaultRoot(cfg.AppDir)
	if err != nil {
		logger.Error("resolve app directory", "error", err)
		os.Exit(1)
	}
	paths, err := platform.NewPaths(root)
	if err != nil {
		logger.Error("create app directory layout", "root", root, "error", err)
		os.Exit(1)
	}

	settingsSvc, err := settings.NewService(paths.ConfigFile(), logger)
	if err != nil {
		logger.Error("load settings", "path", paths.ConfigFile(), "error", err)
		os.Exit(1)
	}
	if doc := settingsSvc.Get(); doc.Download.DownloadPath == "" {
		doc.Download.DownloadPath = paths.DefaultDownloadsDir()
		settingsSvc.Update(doc)
	}

	librarySvc, err := library.NewService(paths.LibraryDB(), logger)
	if err != nil {
		logger.Error("open library database", "path", paths.LibraryDB(), "error", err)
		os.Exit(1)
	}

	hub := events.NewHub()
	registry := engine.NewProcessRegistry()

	var downloader engine.Downloader
	var media engine.MediaEngine
	if cfg.MockEngine {
		downloader = engine.NewMockDownloader()
		media = engine.NewMockMediaEngine()
		logger.Warn("running with mock engines")
	} else {
		adv := settingsSvc.Get().Advanced
		ytdlpPath, ok := paths.FindBinary("yt-dlp", firstNonEmpty(cfg.YtdlpPath, adv.YtdlpPath))
		if !ok {
			logger.Error("yt-dlp binary not found; set CLIPY_YTDLP_PATH or install it")
			os.Exit(1)
		}
		ffmpegPath, ok := paths.FindBinary("ffmpeg", firstNonEmpty(cfg.FFmpegPath, adv.FFmpegPath))
		if !ok {
			logger.Error("ffmpeg binary not found; set CLIPY_FFMPEG_PATH or install it")
			os.Exit(1)
		}
		downloader = engine.NewYtdlp(ytdlpPath, paths.DownloadArchive(), registry, logger)
		media = engine.NewFFmpeg(ffmpegPath, registry, logger)
	}

	downloadSvc := download.NewService(store.NewDownloadStore(), hub, downloader, registry, settingsSvc, librarySvc, logger)
	editorSvc := editor.NewService(paths.ProjectsDir(), logger)
	exporter := editor.NewExporter(media, hub, logger)

	pairingKey := cfg.PairingKey
	if pairingKey == "" {
		pairingKey = uuid.NewString()
		logger.Info("generated pairing key", "pairing_key", pairingKey)
	}
	authSvc, err := auth.NewService(pairingKey, cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		logger.Error("init auth", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(api.Deps{
		Auth:      authSvc,
		Downloads: downloadSvc,
		Editor:    editorSvc,
		Exporter:  exporter,
		Media:     media,
		Library:   librarySvc,
		Settings:  settingsSvc,
		Paths:     paths,
		Hub:       hub,
		Log:       logger,
	})

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("host_start", "addr", cfg.Addr, "app_dir", root, "mock_engine", cfg.MockEngine)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited with error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	downloadSvc.Close()
	if err := settingsSvc.Flush(); err != nil {
		logger.Warn("flush settings", "error", err)
	}
	if err := librarySvc.Close(); err != nil {
		logger.Warn("close library", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
