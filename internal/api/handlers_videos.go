package api

import (
	"net/http"
	"path/filepath"

	"clipy/host/internal/engine"
	"clipy/host/internal/platform"

	"github.com/gin-gonic/gin"
)

type videoURLRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) videoInfo(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req videoURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "url is required", false, nil)
		return
	}
	info, err := s.downloads.GetInfo(c.Request.Context(), req.URL)
	if err != nil {
		writeDownloadError(c, err)
		return
	}
	writeData(c, http.StatusOK, info)
}

func (s *Server) videoStreams(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req videoURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "url is required", false, nil)
		return
	}
	streams, err := s.downloads.GetStreamingInfo(c.Request.Context(), req.URL)
	if err != nil {
		writeDownloadError(c, err)
		return
	}
	writeData(c, http.StatusOK, streams)
}

func (s *Server) videoQualities(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req videoURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "url is required", false, nil)
		return
	}
	qualities, err := s.downloads.AvailableQualities(c.Request.Context(), req.URL)
	if err != nil {
		writeDownloadError(c, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"qualities": qualities})
}

type mediaPathRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) probeMedia(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req mediaPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "path is required", false, nil)
		return
	}
	meta, merr := s.media.Probe(c.Request.Context(), req.Path)
	if merr != nil {
		writeMediaError(c, merr)
		return
	}
	writeData(c, http.StatusOK, gin.H{
		"metadata":  meta,
		"media_url": platform.MediaURL(req.Path),
	})
}

type thumbnailRequest struct {
	Path   string  `json:"path" binding:"required"`
	Output string  `json:"output"`
	AtSec  float64 `json:"at_sec"`
	Width  int     `json:"width"`
}

func (s *Server) mediaThumbnail(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req thumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "path is required", false, nil)
		return
	}
	output := req.Output
	if output == "" {
		output = filepath.Join(s.paths.CacheDir(), "thumb_"+traceIDFromContext(c)+".jpg")
	}
	if merr := s.media.Thumbnail(c.Request.Context(), req.Path, output, req.AtSec, req.Width); merr != nil {
		writeMediaError(c, merr)
		return
	}
	writeData(c, http.StatusOK, gin.H{
		"path":      output,
		"media_url": platform.MediaURL(output),
	})
}

type timelineThumbnailsRequest struct {
	Path  string `json:"path" binding:"required"`
	Count int    `json:"count"`
	Width int    `json:"width"`
}

func (s *Server) timelineThumbnails(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req timelineThumbnailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "path is required", false, nil)
		return
	}
	if req.Count <= 0 {
		req.Count = 10
	}
	paths, merr := s.media.TimelineThumbnails(c.Request.Context(), req.Path, s.paths.CacheDir(), req.Count, req.Width)
	if merr != nil {
		writeMediaError(c, merr)
		return
	}
	urls := make([]string, len(paths))
	for i, p := range paths {
		urls[i] = platform.MediaURL(p)
	}
	writeData(c, http.StatusOK, gin.H{"paths": paths, "media_urls": urls})
}

type waveformRequest struct {
	Path    string `json:"path" binding:"required"`
	Samples int    `json:"samples"`
}

func (s *Server) mediaWaveform(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req waveformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "path is required", false, nil)
		return
	}
	if req.Samples <= 0 {
		req.Samples = 1000
	}
	peaks, merr := s.media.Waveform(c.Request.Context(), req.Path, req.Samples)
	if merr != nil {
		writeMediaError(c, merr)
		return
	}
	if peaks == nil {
		peaks = []float64{}
	}
	writeData(c, http.StatusOK, gin.H{"peaks": peaks})
}

type transcodeRequest struct {
	Path   string `json:"path" binding:"required"`
	Output string `json:"output"`
}

// transcodeMedia re-encodes a source into an edit-friendly mp4 so the
// timeline can seek frame-accurately on codecs the player chokes on.
func (s *Server) transcodeMedia(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req transcodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "path is required", false, nil)
		return
	}
	output := req.Output
	if output == "" {
		base := platform.SanitizeFilename(filepath.Base(req.Path))
		output = filepath.Join(s.paths.TempDir(), "edit_"+base+".mp4")
	}
	if merr := s.media.Transcode(c.Request.Context(), req.Path, output); merr != nil {
		writeMediaError(c, merr)
		return
	}
	writeData(c, http.StatusOK, gin.H{
		"path":      output,
		"media_url": platform.MediaURL(output),
	})
}

func writeMediaError(c *gin.Context, err *engine.Error) {
	writeError(c, engineStatus(err.Kind), err.Kind, err.Message, err.Retryable, nil)
}
