package api

import (
	"errors"
	"net/http"
	"strconv"

	"clipy/host/internal/library"

	"github.com/gin-gonic/gin"
)

func (s *Server) listLibrary(c *gin.Context) {
	limit := intQuery(c, "limit", 0)
	offset := intQuery(c, "offset", 0)
	videos, err := s.library.List(limit, offset)
	if err != nil {
		writeLibraryError(c, err)
		return
	}
	writeData(c, http.StatusOK, videos)
}

func (s *Server) searchLibrary(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		writeError(c, http.StatusBadRequest, "invalid_request", "q is required", false, nil)
		return
	}
	videos, err := s.library.Search(query, intQuery(c, "limit", 0))
	if err != nil {
		writeLibraryError(c, err)
		return
	}
	writeData(c, http.StatusOK, videos)
}

func (s *Server) libraryStats(c *gin.Context) {
	stats, err := s.library.Stats()
	if err != nil {
		writeLibraryError(c, err)
		return
	}
	writeData(c, http.StatusOK, stats)
}

func (s *Server) exportLibrary(c *gin.Context) {
	raw, err := s.library.Export()
	if err != nil {
		writeLibraryError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="library.json"`)
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) libraryHistory(c *gin.Context) {
	entries, err := s.library.History(intQuery(c, "limit", 0))
	if err != nil {
		writeLibraryError(c, err)
		return
	}
	writeData(c, http.StatusOK, entries)
}

func (s *Server) clearLibraryHistory(c *gin.Context) {
	if err := s.library.ClearHistory(); err != nil {
		writeLibraryError(c, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"ok": true})
}

type renameRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) renameLibraryEntry(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "title is required", false, nil)
		return
	}
	id, ok := entryID(c)
	if !ok {
		return
	}
	video, err := s.library.Rename(id, req.Title)
	if err != nil {
		writeLibraryError(c, err)
		return
	}
	writeData(c, http.StatusOK, video)
}

func (s *Server) deleteLibraryEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	deleteFile := c.Query("delete_file") == "true"
	if err := s.library.Delete(id, deleteFile); err != nil {
		writeLibraryError(c, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"ok": true})
}

type bulkDeleteRequest struct {
	IDs         []uint `json:"ids" binding:"required"`
	DeleteFiles bool   `json:"delete_files"`
}

func (s *Server) bulkDeleteLibrary(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		writeError(c, http.StatusBadRequest, "invalid_request", "ids is required", false, nil)
		return
	}
	deleted, err := s.library.DeleteMany(req.IDs, req.DeleteFiles)
	if err != nil {
		writeLibraryError(c, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"deleted": deleted})
}

func entryID(c *gin.Context) (uint, bool) {
	n, err := strconv.ParseUint(c.Param("entry_id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "entry id must be numeric", false, nil)
		return 0, false
	}
	return uint(n), true
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func writeLibraryError(c *gin.Context, err error) {
	if errors.Is(err, library.ErrNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "Library entry not found", false, nil)
		return
	}
	writeError(c, http.StatusInternalServerError, "io_error", "Library operation failed", true, nil)
}
