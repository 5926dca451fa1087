// Package api exposes the host's HTTP surface to the UI shell: download
// queue control, video probing, the timeline editor, the library, settings
// and live event streams over SSE and WebSocket.
package api

import (
	"log/slog"

	"clipy/host/internal/auth"
	"clipy/host/internal/download"
	"clipy/host/internal/editor"
	"clipy/host/internal/engine"
	"clipy/host/internal/events"
	"clipy/host/internal/library"
	"clipy/host/internal/platform"
	"clipy/host/internal/settings"

	"github.com/gin-gonic/gin"
)

type Server struct {
	auth      *auth.Service
	downloads *download.Service
	editor    *editor.Service
	exporter  *editor.Exporter
	media     engine.MediaEngine
	library   *library.Service
	settings  *settings.Service
	paths     platform.Paths
	hub       *events.Hub
	log       *slog.Logger
}

type Deps struct {
	Auth      *auth.Service
	Downloads *download.Service
	Editor    *editor.Service
	Exporter  *editor.Exporter
	Media     engine.MediaEngine
	Library   *library.Service
	Settings  *settings.Service
	Paths     platform.Paths
	Hub       *events.Hub
	Log       *slog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		auth:      d.Auth,
		downloads: d.Downloads,
		editor:    d.Editor,
		exporter:  d.Exporter,
		media:     d.Media,
		library:   d.Library,
		settings:  d.Settings,
		paths:     d.Paths,
		hub:       d.Hub,
		log:       d.Log,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(RequestLogMiddleware(s.log))

	v1 := r.Group("/api/v1")
	v1.GET("/healthz", func(c *gin.Context) {
		writeData(c, 200, gin.H{"status": "ok"})
	})

	v1.POST("/auth/pair", s.pair)
	v1.POST("/auth/refresh", s.refresh)

	authed := v1.Group("")
	authed.Use(AuthMiddleware(s.auth))
	{
		authed.POST("/auth/logout", s.logout)

		authed.POST("/downloads", s.startDownload)
		authed.GET("/downloads", s.listDownloads)
		authed.GET("/downloads/history", s.downloadHistory)
		authed.POST("/downloads/clear-completed", s.clearCompleted)
		authed.GET("/downloads/events", s.streamDownloadEvents)
		authed.GET("/downloads/ws", s.downloadSocket)
		authed.GET("/downloads/:download_id", s.getDownload)
		authed.GET("/downloads/:download_id/progress", s.getDownloadProgress)
		authed.POST("/downloads/:download_id/pause", s.pauseDownload)
		authed.POST("/downloads/:download_id/resume", s.resumeDownload)
		authed.POST("/downloads/:download_id/cancel", s.cancelDownload)
		authed.POST("/downloads/:download_id/retry", s.retryDownload)
		authed.DELETE("/downloads/:download_id", s.deleteDownload)

		authed.POST("/videos/info", s.videoInfo)
		authed.POST("/videos/streams", s.videoStreams)
		authed.POST("/videos/qualities", s.videoQualities)

		authed.POST("/editor/projects", s.createProject)
		authed.GET("/editor/projects", s.listProjects)
		authed.GET("/editor/projects/saved", s.savedProjects)
		authed.POST("/editor/projects/load", s.loadProject)
		authed.GET("/editor/projects/:project_id", s.getProject)
		authed.DELETE("/editor/projects/:project_id", s.closeProject)
		authed.POST("/editor/projects/:project_id/save", s.saveProject)
		authed.POST("/editor/projects/:project_id/tracks", s.addTrack)
		authed.DELETE("/editor/projects/:project_id/tracks/:track_id", s.removeTrack)
		authed.PATCH("/editor/projects/:project_id/tracks/:track_id", s.patchTrack)
		authed.POST("/editor/projects/:project_id/clips", s.addClip)
		authed.POST("/editor/projects/:project_id/clips/:clip_id/split", s.splitClip)
		authed.POST("/editor/projects/:project_id/clips/:clip_id/duplicate", s.duplicateClip)
		authed.POST("/editor/projects/:project_id/clips/:clip_id/move", s.moveClip)
		authed.POST("/editor/projects/:project_id/clips/:clip_id/trim", s.trimClip)
		authed.PUT("/editor/projects/:project_id/clips/:clip_id/properties", s.updateClipProperties)
		authed.DELETE("/editor/projects/:project_id/clips/:clip_id", s.removeClip)
		authed.PUT("/editor/projects/:project_id/selection", s.setSelection)
		authed.POST("/editor/projects/:project_id/selection/delete", s.deleteSelected)
		authed.POST("/editor/projects/:project_id/undo", s.undoProject)
		authed.POST("/editor/projects/:project_id/redo", s.redoProject)
		authed.POST("/editor/projects/:project_id/export", s.startExport)
		authed.GET("/editor/projects/:project_id/export", s.exportProgress)
		authed.POST("/editor/export/cancel", s.cancelExport)
		authed.GET("/editor/export/formats", s.exportFormats)
		authed.GET("/editor/export/resolutions", s.exportResolutions)

		authed.POST("/media/probe", s.probeMedia)
		authed.POST("/media/thumbnail", s.mediaThumbnail)
		authed.POST("/media/thumbnails", s.timelineThumbnails)
		authed.POST("/media/waveform", s.mediaWaveform)
		authed.POST("/media/transcode", s.transcodeMedia)

		authed.GET("/library", s.listLibrary)
		authed.GET("/library/search", s.searchLibrary)
		authed.GET("/library/stats", s.libraryStats)
		authed.GET("/library/export", s.exportLibrary)
		authed.GET("/library/history", s.libraryHistory)
		authed.DELETE("/library/history", s.clearLibraryHistory)
		authed.POST("/library/bulk-delete", s.bulkDeleteLibrary)
		authed.PATCH("/library/:entry_id", s.renameLibraryEntry)
		authed.DELETE("/library/:entry_id", s.deleteLibraryEntry)

		authed.GET("/settings", s.getSettings)
		authed.PUT("/settings", s.putSettings)
		authed.GET("/settings/export", s.exportSettings)
		authed.POST("/settings/import", s.importSettings)
		authed.POST("/settings/reset", s.resetSettings)
		authed.GET("/settings/keys/:key", s.getSettingsKey)
		authed.PUT("/settings/keys/:key", s.putSettingsKey)

		authed.GET("/system/info", s.systemInfo)
		authed.GET("/system/binaries", s.systemBinaries)
		authed.GET("/system/media-url", s.mediaURL)
		authed.GET("/system/cache", s.cacheStats)
		authed.POST("/system/cache/clear", s.clearCache)
	}

	return r
}
