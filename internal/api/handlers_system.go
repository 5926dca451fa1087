package api

import (
	"net/http"
	"runtime"

	"clipy/host/internal/platform"

	"github.com/gin-gonic/gin"
)

// systemBinaries probes each managed tool so the UI can surface missing
// binaries before the first download fails.
func (s *Server) systemBinaries(c *gin.Context) {
	ctx := c.Request.Context()
	ytdlp := gin.H{"name": "yt-dlp", "available": false}
	if s.downloads != nil {
		if v, err := s.downloads.EngineVersion(ctx); err == nil {
			ytdlp["available"] = true
			ytdlp["version"] = v
		} else {
			ytdlp["error"] = err.Error()
		}
	}
	ffmpeg := gin.H{"name": "ffmpeg", "available": false}
	if s.media != nil {
		if v, err := s.media.Version(ctx); err == nil {
			ffmpeg["available"] = true
			ffmpeg["version"] = v
		} else {
			ffmpeg["error"] = err.Error()
		}
	}
	writeData(c, http.StatusOK, []gin.H{ytdlp, ffmpeg})
}

// mediaURL maps an absolute filesystem path into the clipy:// scheme the
// UI's media elements load from.
func (s *Server) mediaURL(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		writeError(c, http.StatusBadRequest, "invalid_request", "path query parameter is required", false, nil)
		return
	}
	writeData(c, http.StatusOK, gin.H{"media_url": platform.MediaURL(path)})
}

func (s *Server) systemInfo(c *gin.Context) {
	ctx := c.Request.Context()
	info := gin.H{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}
	if s.downloads != nil {
		if v, err := s.downloads.EngineVersion(ctx); err == nil {
			info["ytdlp_version"] = v
		} else {
			info["ytdlp_error"] = err.Error()
		}
	}
	if s.media != nil {
		if v, err := s.media.Version(ctx); err == nil {
			info["ffmpeg_version"] = v
		} else {
			info["ffmpeg_error"] = err.Error()
		}
	}
	writeData(c, http.StatusOK, info)
}

func (s *Server) cacheStats(c *gin.Context) {
	files, bytes, err := s.paths.CacheStats()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "io_error", "Failed to stat cache", true, nil)
		return
	}
	writeData(c, http.StatusOK, gin.H{"files": files, "bytes": bytes})
}

func (s *Server) clearCache(c *gin.Context) {
	if err := s.paths.ClearCache(); err != nil {
		writeError(c, http.StatusInternalServerError, "io_error", "Failed to clear cache", true, nil)
		return
	}
	writeData(c, http.StatusOK, gin.H{"ok": true})
}
