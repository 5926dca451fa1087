package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"clipy/host/internal/engine"
	"clipy/host/internal/events"
	"clipy/host/internal/model"
)

var ErrExportActive = errors.New("an export is already running")

// Exporter runs timeline exports through the media engine, one at a time.
// Progress fans out on the exports topic and stays queryable per project
// after the run ends.
type Exporter struct {
	media engine.MediaEngine
	hub   *events.Hub
	log   *slog.Logger

	mu      sync.Mutex
	active  string
	cancel  context.CancelFunc
	results map[string]model.ExportProgress
}

func NewExporter(media engine.MediaEngine, hub *events.Hub, logger *slog.Logger) *Exporter {
	return &Exporter{
		media:   media,
		hub:     hub,
		log:     logger,
		results: map[string]model.ExportProgress{},
	}
}

// Start begins exporting a project snapshot. A second export while one is
// running is rejected rather than queued; the UI disables the button.
func (e *Exporter) Start(project model.Project, settings model.ExportSettings) error {
	e.mu.Lock()
	if e.active != "" {
		e.mu.Unlock()
		return ErrExportActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.active = project.ID
	e.cancel = cancel
	e.results[project.ID] = model.ExportProgress{ProjectID: project.ID, State: model.ExportRunning}
	e.mu.Unlock()

	go e.run(ctx, project.Clone(), settings)
	return nil
}

func (e *Exporter) run(ctx context.Context, project model.Project, settings model.ExportSettings) {
	defer func() {
		e.mu.Lock()
		e.active = ""
		e.cancel = nil
		e.mu.Unlock()
	}()

	progress := make(chan model.ExportProgress, 16)
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for p := range progress {
			e.record(p)
			e.publish(model.EventExportProgress, p)
		}
	}()

	err := e.media.Export(ctx, project, settings, progress)
	close(progress)
	<-forwardDone

	final := model.ExportProgress{ProjectID: project.ID, OutputPath: settings.OutputPath}
	switch {
	case err == nil:
		final.State = model.ExportCompleted
		final.Progress = 100
		e.record(final)
		e.publish(model.EventExportCompleted, final)
		e.log.Info("export finished", "project", project.ID, "output", settings.OutputPath)
	case err.Kind == engine.KindCancelled:
		final.State = model.ExportCancelled
		e.record(final)
		e.publish(model.EventExportCancelled, final)
	default:
		final.State = model.ExportFailed
		final.Error = err.Message
		e.record(final)
		e.publish(model.EventExportFailed, final)
		e.log.Error("export failed", "project", project.ID, "error", err.Message)
	}
}

// Cancel stops the running export. Cancelling when idle is a no-op.
func (e *Exporter) Cancel() bool {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Active returns the project id of the running export, empty when idle.
func (e *Exporter) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Progress returns the latest known state for a project's export.
func (e *Exporter) Progress(projectID string) (model.ExportProgress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.results[projectID]
	return p, ok
}

func (e *Exporter) record(p model.ExportProgress) {
	e.mu.Lock()
	e.results[p.ProjectID] = p
	e.mu.Unlock()
}

func (e *Exporter) publish(eventType model.DownloadEventType, p model.ExportProgress) {
	e.hub.Publish(events.TopicExports, model.DownloadEvent{
		Type: eventType,
		TS:   time.Now().UTC(),
		Payload: map[string]any{
			"project_id": p.ProjectID,
			"state":      string(p.State),
			"progress":   p.Progress,
			"output":     p.OutputPath,
			"error":      p.Error,
		},
	})
}
