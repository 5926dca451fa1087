package api

import (
	"errors"
	"io"
	"net/http"

	"clipy/host/internal/settings"

	"github.com/gin-gonic/gin"
)

func (s *Server) getSettings(c *gin.Context) {
	writeData(c, http.StatusOK, s.settings.Get())
}

func (s *Server) putSettings(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var doc settings.AppSettings
	if err := c.ShouldBindJSON(&doc); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid settings document", false, nil)
		return
	}
	s.settings.Update(doc)
	writeData(c, http.StatusOK, s.settings.Get())
}

func (s *Server) resetSettings(c *gin.Context) {
	writeData(c, http.StatusOK, s.settings.Reset())
}

func (s *Server) exportSettings(c *gin.Context) {
	raw, err := s.settings.Export()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "io_error", "Failed to export settings", true, nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="clipy-settings.json"`)
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) importSettings(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Cannot read settings body", false, nil)
		return
	}
	if err := s.settings.Import(raw); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Not a valid settings document", false, nil)
		return
	}
	writeData(c, http.StatusOK, s.settings.Get())
}

func (s *Server) getSettingsKey(c *gin.Context) {
	value, err := s.settings.GetKey(c.Param("key"))
	if err != nil {
		writeSettingsKeyError(c, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

type settingsValueRequest struct {
	Value any `json:"value"`
}

func (s *Server) putSettingsKey(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req settingsValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "value is required", false, nil)
		return
	}
	if err := s.settings.UpdateKey(c.Param("key"), req.Value); err != nil {
		writeSettingsKeyError(c, err)
		return
	}
	value, _ := s.settings.GetKey(c.Param("key"))
	writeData(c, http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

func writeSettingsKeyError(c *gin.Context, err error) {
	if errors.Is(err, settings.ErrUnknownKey) {
		writeError(c, http.StatusNotFound, "not_found", "Unknown settings key", false,
			map[string]any{"key": c.Param("key")})
		return
	}
	writeError(c, http.StatusBadRequest, "invalid_request", "Cannot apply settings value", false, nil)
}
