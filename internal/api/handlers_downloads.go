package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clipy/host/internal/download"
	"clipy/host/internal/engine"
	"clipy/host/internal/events"
	"clipy/host/internal/model"
	"clipy/host/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type startDownloadRequest struct {
	URL     string               `json:"url" binding:"required"`
	ID      string               `json:"id"`
	Options model.DownloadOption `json:"options"`
}

func (s *Server) startDownload(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req startDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "url is required", false, nil)
		return
	}
	rec, err := s.downloads.StartWithID(c.Request.Context(), req.ID, req.URL, req.Options)
	if err != nil {
		if errors.Is(err, download.ErrInvalidURL) {
			writeError(c, http.StatusBadRequest, engine.KindInvalidURL, "Not a valid http(s) URL", false, nil)
			return
		}
		writeError(c, http.StatusInternalServerError, engine.KindEngine, "Failed to queue download", true, nil)
		return
	}
	writeData(c, http.StatusCreated, rec)
}

func (s *Server) listDownloads(c *gin.Context) {
	filter := model.DownloadFilter(c.DefaultQuery("filter", string(model.FilterAll)))
	switch filter {
	case model.FilterAll, model.FilterActive, model.FilterCompleted, model.FilterFailed:
	default:
		writeError(c, http.StatusBadRequest, "invalid_request", "unknown filter", false, nil)
		return
	}
	writeData(c, http.StatusOK, s.downloads.List(filter))
}

func (s *Server) downloadHistory(c *gin.Context) {
	writeData(c, http.StatusOK, s.downloads.History())
}

func (s *Server) clearCompleted(c *gin.Context) {
	moved := s.downloads.ClearCompleted()
	writeData(c, http.StatusOK, gin.H{"cleared": moved})
}

func (s *Server) getDownload(c *gin.Context) {
	rec, err := s.downloads.Get(c.Param("download_id"))
	if err != nil {
		writeDownloadError(c, err)
		return
	}
	writeData(c, http.StatusOK, rec)
}

func (s *Server) getDownloadProgress(c *gin.Context) {
	p, err := s.downloads.GetProgress(c.Param("download_id"))
	if err != nil {
		writeDownloadError(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

func (s *Server) pauseDownload(c *gin.Context) {
	s.guardedTransition(c, s.downloads.Pause, "pause")
}

func (s *Server) resumeDownload(c *gin.Context) {
	s.guardedTransition(c, s.downloads.Resume, "resume")
}

func (s *Server) cancelDownload(c *gin.Context) {
	s.guardedTransition(c, s.downloads.Cancel, "cancel")
}

func (s *Server) retryDownload(c *gin.Context) {
	s.guardedTransition(c, s.downloads.Retry, "retry")
}

// guardedTransition runs a state-guarded queue operation. The record comes
// back either way; a no-op reads as a conflict so the UI can refresh.
func (s *Server) guardedTransition(c *gin.Context, op func(string) model.DownloadRecord, name string) {
	id := c.Param("download_id")
	if _, err := s.downloads.Get(id); err != nil {
		writeDownloadError(c, err)
		return
	}
	before, _ := s.downloads.Get(id)
	rec := op(id)
	if rec.ID == "" {
		writeDownloadError(c, store.ErrNotFound)
		return
	}
	if rec.Status == before.Status {
		writeError(c, http.StatusConflict, "invalid_state",
			fmt.Sprintf("Cannot %s a %s download", name, rec.Status), false,
			map[string]any{"status": string(rec.Status)})
		return
	}
	writeData(c, http.StatusOK, rec)
}

func (s *Server) deleteDownload(c *gin.Context) {
	deleteFile := c.Query("delete_file") == "true"
	if !s.downloads.Delete(c.Param("download_id"), deleteFile) {
		writeDownloadError(c, store.ErrNotFound)
		return
	}
	writeData(c, http.StatusOK, gin.H{"ok": true})
}

func writeDownloadError(c *gin.Context, err error) {
	var engErr *engine.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, engine.KindNotFound, "Download not found", false, nil)
	case errors.Is(err, download.ErrInvalidURL):
		writeError(c, http.StatusBadRequest, engine.KindInvalidURL, "Not a valid http(s) URL", false, nil)
	case errors.As(err, &engErr):
		writeError(c, engineStatus(engErr.Kind), engErr.Kind, engErr.Message, engErr.Retryable, nil)
	default:
		writeError(c, http.StatusInternalServerError, engine.KindEngine, "Internal error", true, nil)
	}
}

func engineStatus(kind string) int {
	switch kind {
	case engine.KindInvalidURL:
		return http.StatusBadRequest
	case engine.KindUnsupportedSite:
		return http.StatusUnprocessableEntity
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindAuthRequired:
		return http.StatusForbidden
	case engine.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// streamDownloadEvents is the SSE feed. Reconnecting clients replay the
// backlog from Last-Event-ID or from_seq before going live.
func (s *Server) streamDownloadEvents(c *gin.Context) {
	fromSeq := parseLastEventSeq(c.GetHeader("Last-Event-ID"))
	if q := c.Query("from_seq"); q != "" {
		if v, err := strconv.ParseInt(q, 10, 64); err == nil && v > 0 {
			fromSeq = v
		}
	}

	backlog := s.downloads.ListEventsFrom(fromSeq)
	_, sub, unsubscribe := s.hub.Subscribe(events.TopicDownloads, 128)
	defer unsubscribe()
	_, exportSub, unsubExports := s.hub.Subscribe(events.TopicExports, 128)
	defer unsubExports()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, http.StatusInternalServerError, "sse_unsupported", "Streaming unsupported", false, nil)
		return
	}

	for _, evt := range backlog {
		writeSSE(c, evt)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			writeSSE(c, evt)
			flusher.Flush()
		case evt, ok := <-exportSub:
			if !ok {
				return
			}
			writeSSE(c, evt)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(c.Writer, ": ping %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}

func writeSSE(c *gin.Context, evt model.DownloadEvent) {
	payload, _ := json.Marshal(evt)
	if evt.Seq > 0 {
		fmt.Fprintf(c.Writer, "id: %d\n", evt.Seq)
	}
	fmt.Fprintf(c.Writer, "event: %s\n", evt.Type)
	fmt.Fprintf(c.Writer, "data: %s\n\n", string(payload))
}

func parseLastEventSeq(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The host serves loopback only; the UI shell's origin varies by
	// platform webview.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// downloadSocket mirrors the SSE feed over WebSocket for the UI's
// event bus, which prefers a bidirectional channel for pings.
func (s *Server) downloadSocket(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_, sub, unsubscribe := s.hub.Subscribe(events.TopicDownloads, 128)
	defer unsubscribe()
	_, exportSub, unsubExports := s.hub.Subscribe(events.TopicExports, 128)
	defer unsubExports()

	// Reader goroutine only services control frames and detects close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case evt, ok := <-exportSub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
