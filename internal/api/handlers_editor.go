package api

import (
	"errors"
	"net/http"

	"clipy/host/internal/editor"
	"clipy/host/internal/model"

	"github.com/gin-gonic/gin"
)

type createProjectRequest struct {
	Name     string                `json:"name"`
	Settings model.ProjectSettings `json:"settings"`
}

func (s *Server) createProject(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid project payload", false, nil)
		return
	}
	if req.Name == "" {
		req.Name = "Untitled Project"
	}
	writeData(c, http.StatusCreated, s.editor.NewProject(req.Name, req.Settings))
}

func (s *Server) listProjects(c *gin.Context) {
	writeData(c, http.StatusOK, s.editor.List())
}

func (s *Server) getProject(c *gin.Context) {
	p, err := s.editor.Get(c.Param("project_id"))
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

func (s *Server) closeProject(c *gin.Context) {
	if !s.editor.CloseProject(c.Param("project_id")) {
		writeEditorError(c, editor.ErrProjectNotFound)
		return
	}
	writeData(c, http.StatusOK, gin.H{"ok": true})
}

func (s *Server) saveProject(c *gin.Context) {
	path, err := s.editor.Save(c.Param("project_id"))
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"path": path})
}

func (s *Server) savedProjects(c *gin.Context) {
	paths, err := s.editor.SavedProjects()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "io_error", "Failed to list saved projects", true, nil)
		return
	}
	writeData(c, http.StatusOK, gin.H{"paths": paths})
}

type loadProjectRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) loadProject(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req loadProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "path is required", false, nil)
		return
	}
	p, err := s.editor.Load(req.Path)
	if err != nil {
		writeError(c, http.StatusUnprocessableEntity, "io_error", "Failed to load project file", false,
			map[string]any{"path": req.Path})
		return
	}
	writeData(c, http.StatusOK, p)
}

type addTrackRequest struct {
	Type model.TrackType `json:"type" binding:"required"`
}

func (s *Server) addTrack(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req addTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "type is required", false, nil)
		return
	}
	p, err := s.editor.AddTrack(c.Param("project_id"), req.Type)
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

func (s *Server) removeTrack(c *gin.Context) {
	p, err := s.editor.RemoveTrack(c.Param("project_id"), c.Param("track_id"))
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

type patchTrackRequest struct {
	Muted  *bool `json:"muted"`
	Locked *bool `json:"locked"`
}

func (s *Server) patchTrack(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req patchTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid track patch", false, nil)
		return
	}
	projectID, trackID := c.Param("project_id"), c.Param("track_id")
	var p model.Project
	var err error
	if req.Muted != nil {
		if p, err = s.editor.SetTrackMuted(projectID, trackID, *req.Muted); err != nil {
			writeEditorError(c, err)
			return
		}
	}
	if req.Locked != nil {
		if p, err = s.editor.SetTrackLocked(projectID, trackID, *req.Locked); err != nil {
			writeEditorError(c, err)
			return
		}
	}
	if req.Muted == nil && req.Locked == nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Nothing to patch", false, nil)
		return
	}
	writeData(c, http.StatusOK, p)
}

type addClipRequest struct {
	TrackID    string  `json:"track_id" binding:"required"`
	Name       string  `json:"name"`
	SourcePath string  `json:"source_path" binding:"required"`
	StartTime  float64 `json:"start_time"`
	Duration   float64 `json:"duration" binding:"required"`
}

func (s *Server) addClip(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req addClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "track_id, source_path and duration are required", false, nil)
		return
	}
	p, err := s.editor.AddClip(c.Param("project_id"), req.TrackID, req.Name, req.SourcePath, req.StartTime, req.Duration)
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

func (s *Server) removeClip(c *gin.Context) {
	p, err := s.editor.RemoveClip(c.Param("project_id"), c.Param("clip_id"))
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

type splitClipRequest struct {
	At float64 `json:"at"`
}

func (s *Server) splitClip(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req splitClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "at is required", false, nil)
		return
	}
	p, err := s.editor.SplitClip(c.Param("project_id"), c.Param("clip_id"), req.At)
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

func (s *Server) duplicateClip(c *gin.Context) {
	p, err := s.editor.DuplicateClip(c.Param("project_id"), c.Param("clip_id"))
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

type moveClipRequest struct {
	TrackID  string  `json:"track_id"`
	NewStart float64 `json:"new_start"`
}

func (s *Server) moveClip(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req moveClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid move payload", false, nil)
		return
	}
	p, err := s.editor.MoveClip(c.Param("project_id"), c.Param("clip_id"), req.TrackID, req.NewStart)
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

type trimClipRequest struct {
	NewStart float64 `json:"new_start"`
	NewEnd   float64 `json:"new_end"`
}

func (s *Server) trimClip(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req trimClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "new_start and new_end are required", false, nil)
		return
	}
	p, err := s.editor.TrimClip(c.Param("project_id"), c.Param("clip_id"), req.NewStart, req.NewEnd)
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

func (s *Server) updateClipProperties(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var props model.ClipProperties
	if err := c.ShouldBindJSON(&props); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid clip properties", false, nil)
		return
	}
	p, err := s.editor.UpdateClipProperties(c.Param("project_id"), c.Param("clip_id"), props)
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

type selectionRequest struct {
	ClipIDs []string `json:"clip_ids"`
}

func (s *Server) setSelection(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "clip_ids is required", false, nil)
		return
	}
	if err := s.editor.Select(c.Param("project_id"), req.ClipIDs); err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"selection": s.editor.Selection(c.Param("project_id"))})
}

func (s *Server) deleteSelected(c *gin.Context) {
	p, err := s.editor.DeleteSelected(c.Param("project_id"))
	if err != nil {
		writeEditorError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

func (s *Server) undoProject(c *gin.Context) {
	p, ok := s.editor.Undo(c.Param("project_id"))
	if p.ID == "" {
		writeEditorError(c, editor.ErrProjectNotFound)
		return
	}
	writeData(c, http.StatusOK, gin.H{"project": p, "applied": ok})
}

func (s *Server) redoProject(c *gin.Context) {
	p, ok := s.editor.Redo(c.Param("project_id"))
	if p.ID == "" {
		writeEditorError(c, editor.ErrProjectNotFound)
		return
	}
	writeData(c, http.StatusOK, gin.H{"project": p, "applied": ok})
}

func (s *Server) startExport(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var settings model.ExportSettings
	if err := c.ShouldBindJSON(&settings); err != nil || settings.OutputPath == "" {
		writeError(c, http.StatusBadRequest, "invalid_request", "output_path is required", false, nil)
		return
	}
	p, err := s.editor.Get(c.Param("project_id"))
	if err != nil {
		writeEditorError(c, err)
		return
	}
	if err := s.exporter.Start(p, settings); err != nil {
		if errors.Is(err, editor.ErrExportActive) {
			writeError(c, http.StatusConflict, "export_active", "An export is already running", true,
				map[string]any{"project_id": s.exporter.Active()})
			return
		}
		writeError(c, http.StatusInternalServerError, "engine_error", "Failed to start export", true, nil)
		return
	}
	writeData(c, http.StatusAccepted, gin.H{"project_id": p.ID})
}

func (s *Server) exportProgress(c *gin.Context) {
	p, ok := s.exporter.Progress(c.Param("project_id"))
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", "No export known for project", false, nil)
		return
	}
	writeData(c, http.StatusOK, p)
}

func (s *Server) cancelExport(c *gin.Context) {
	writeData(c, http.StatusOK, gin.H{"cancelled": s.exporter.Cancel()})
}

type exportFormat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	Description string `json:"description"`
}

type exportResolution struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (s *Server) exportFormats(c *gin.Context) {
	writeData(c, http.StatusOK, []exportFormat{
		{ID: "mp4", Name: "MP4 (H.264)", Extension: "mp4", Description: "Most compatible format"},
		{ID: "webm", Name: "WebM (VP9)", Extension: "webm", Description: "Best for web"},
		{ID: "mov", Name: "QuickTime (ProRes)", Extension: "mov", Description: "High quality, large file"},
		{ID: "mkv", Name: "Matroska (MKV)", Extension: "mkv", Description: "Flexible container"},
		{ID: "gif", Name: "GIF", Extension: "gif", Description: "Animated image"},
	})
}

func (s *Server) exportResolutions(c *gin.Context) {
	writeData(c, http.StatusOK, []exportResolution{
		{ID: "2160p", Name: "4K UHD", Width: 3840, Height: 2160},
		{ID: "1440p", Name: "2K QHD", Width: 2560, Height: 1440},
		{ID: "1080p", Name: "Full HD", Width: 1920, Height: 1080},
		{ID: "720p", Name: "HD", Width: 1280, Height: 720},
		{ID: "480p", Name: "SD", Width: 854, Height: 480},
	})
}

func writeEditorError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, editor.ErrProjectNotFound):
		writeError(c, http.StatusNotFound, "not_found", "Project not found", false, nil)
	case errors.Is(err, editor.ErrTrackNotFound):
		writeError(c, http.StatusNotFound, "not_found", "Track not found", false, nil)
	case errors.Is(err, editor.ErrClipNotFound):
		writeError(c, http.StatusNotFound, "not_found", "Clip not found", false, nil)
	case errors.Is(err, editor.ErrTrackLocked):
		writeError(c, http.StatusConflict, "track_locked", "Track is locked", false, nil)
	default:
		writeError(c, http.StatusUnprocessableEntity, "invalid_edit", err.Error(), false, nil)
	}
}
