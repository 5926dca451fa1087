// Package download orchestrates the queue of yt-dlp downloads: admission,
// runner goroutines, progress fan-out, stall detection and the lifecycle
// operations the API exposes.
package download

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"reflect"
	"sync"
	"time"

	"clipy/host/internal/engine"
	"clipy/host/internal/events"
	"clipy/host/internal/model"
	"clipy/host/internal/settings"
	"clipy/host/internal/store"
)

var ErrInvalidURL = errors.New("invalid url")

// CompletionRecorder receives terminal download outcomes for the persistent
// library and its history. A nil recorder disables recording.
type CompletionRecorder interface {
	RecordCompleted(rec model.DownloadRecord) error
	RecordFailed(rec model.DownloadRecord) error
}

const (
	defaultStallAfter  = 30 * time.Second
	watchdogInterval   = 5 * time.Second
	progressBufferSize = 16
)

type Service struct {
	store    *store.DownloadStore
	hub      *events.Hub
	dl       engine.Downloader
	registry *engine.ProcessRegistry
	settings *settings.Service
	recorder CompletionRecorder
	log      *slog.Logger

	stallAfter time.Duration

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	attempts map[string]int

	stopWatch chan struct{}
	watchDone chan struct{}
}

func NewService(st *store.DownloadStore, hub *events.Hub, dl engine.Downloader, registry *engine.ProcessRegistry, cfg *settings.Service, recorder CompletionRecorder, logger *slog.Logger) *Service {
	s := &Service{
		store:      st,
		hub:        hub,
		dl:         dl,
		registry:   registry,
		settings:   cfg,
		recorder:   recorder,
		log:        logger,
		stallAfter: defaultStallAfter,
		cancels:    map[string]context.CancelFunc{},
		attempts:   map[string]int{},
		stopWatch:  make(chan struct{}),
		watchDone:  make(chan struct{}),
	}
	go s.watchdog()
	return s
}

// Close stops the stall watchdog and cancels every running download.
func (s *Service) Close() {
	close(s.stopWatch)
	<-s.watchDone
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
}

// Start validates the URL, resolves options against settings defaults and
// queues the download. A free queue slot starts it immediately.
func (s *Service) Start(ctx context.Context, url string, opts model.DownloadOption) (model.DownloadRecord, error) {
	return s.start(ctx, "", url, opts)
}

// StartWithID is Start under a caller-chosen id, used when the UI creates
// the record optimistically before asking the host to run it.
func (s *Service) StartWithID(ctx context.Context, id, url string, opts model.DownloadOption) (model.DownloadRecord, error) {
	return s.start(ctx, id, url, opts)
}

func (s *Service) start(ctx context.Context, id, url string, opts model.DownloadOption) (model.DownloadRecord, error) {
	if !ValidateURL(url) {
		return model.DownloadRecord{}, ErrInvalidURL
	}
	resolved := s.resolveOptions(opts)
	var rec model.DownloadRecord
	if id == "" {
		rec = s.store.Add(url, resolved)
	} else {
		rec = s.store.AddWithID(id, url, resolved)
	}
	s.publish(model.EventDownloadQueued, rec.ID, map[string]any{"url": url})
	s.pump()
	return rec, nil
}

// resolveOptions fills unset fields from the persisted settings. A fully
// zero options struct takes every default, embed flags included.
func (s *Service) resolveOptions(opts model.DownloadOption) model.DownloadOption {
	cfg := s.settings.Get().Download
	if optionsAreZero(opts) {
		opts.EmbedThumbnail = cfg.EmbedThumbnail
		opts.EmbedMetadata = cfg.EmbedMetadata
		opts.NoPlaylist = true
		opts.DownloadSubtitles = cfg.DownloadSubtitles
		opts.AutoSubtitles = cfg.AutoSubtitles
		opts.EmbedSubtitles = cfg.EmbedSubtitles
		opts.RestrictFilenames = cfg.RestrictFilenames
		opts.DownloadArchive = cfg.UseDownloadArchive
		opts.GeoBypass = cfg.GeoBypass
		if cfg.SponsorBlock {
			opts.SponsorblockRemove = append([]string(nil), cfg.SponsorBlockCategories...)
		}
		if cfg.DownloadSubtitles && cfg.SubtitleLanguage != "" {
			opts.SubtitleLanguages = []string{cfg.SubtitleLanguage}
		}
	}
	if opts.Quality == "" {
		opts.Quality = cfg.DefaultQuality
	}
	if opts.Format == "" {
		opts.Format = cfg.DefaultFormat
	}
	if opts.AudioFormat == "" {
		opts.AudioFormat = cfg.AudioFormat
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = cfg.AudioBitrate
	}
	if opts.Codec == "" {
		opts.Codec = cfg.VideoCodec
	}
	if opts.OutputDir == "" {
		opts.OutputDir = cfg.DownloadPath
	}
	if opts.OutputTemplate == "" {
		opts.OutputTemplate = cfg.FilenameTemplate
	}
	if opts.SubtitleFormat == "" {
		opts.SubtitleFormat = cfg.SubtitleFormat
	}
	if opts.ConcurrentFragments == 0 {
		opts.ConcurrentFragments = cfg.ConcurrentFragments
	}
	if opts.RateLimit == "" {
		opts.RateLimit = cfg.RateLimit
	}
	if opts.CookiesFromBrowser == "" {
		opts.CookiesFromBrowser = cfg.CookiesFromBrowser
	}
	return opts
}

// optionsAreZero reports whether the caller supplied no options at all, in
// which case every settings default applies, embed flags included.
func optionsAreZero(opts model.DownloadOption) bool {
	if len(opts.SubtitleLanguages) > 0 || len(opts.SponsorblockRemove) > 0 {
		return false
	}
	opts.SubtitleLanguages = nil
	opts.SponsorblockRemove = nil
	return reflect.DeepEqual(opts, model.DownloadOption{})
}

// pump starts pending downloads while queue slots are free. The runner
// table doubles as the admission count so a download occupies its slot
// from launch until its goroutine exits. Called after every state change
// that could open a slot.
func (s *Service) pump() {
	limit := s.settings.Get().Download.MaxConcurrentDownloads
	if limit < 1 {
		limit = 1
	}
	for {
		s.mu.Lock()
		if len(s.cancels) >= limit {
			s.mu.Unlock()
			return
		}
		var next model.DownloadRecord
		found := false
		for _, rec := range s.store.List(model.FilterAll) {
			if rec.Status == model.StatusPending && s.cancels[rec.ID] == nil {
				next, found = rec, true
				break
			}
		}
		if !found {
			s.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.cancels[next.ID] = cancel
		s.mu.Unlock()

		tr := s.store.MarkStarted(next.ID)
		if !tr.Applied {
			cancel()
			s.mu.Lock()
			delete(s.cancels, next.ID)
			s.mu.Unlock()
			continue
		}
		s.publish(model.EventDownloadStarted, next.ID, nil)
		go s.run(ctx, cancel, tr.Record)
	}
}

func (s *Service) run(ctx context.Context, cancel context.CancelFunc, rec model.DownloadRecord) {
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, rec.ID)
		s.mu.Unlock()
		s.pump()
	}()

	progress := make(chan model.DownloadProgress, progressBufferSize)
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for snap := range progress {
			if tr := s.store.UpdateProgress(snap); tr.Applied {
				s.publish(model.EventDownloadProgress, rec.ID, map[string]any{
					"progress":   tr.Record.Progress,
					"speed":      tr.Record.Speed,
					"eta":        tr.Record.ETA,
					"downloaded": tr.Record.Downloaded,
					"total":      tr.Record.FileSize,
				})
			}
		}
	}()

	path, derr := s.dl.Download(ctx, rec.ID, rec.URL, rec.Options, progress)
	close(progress)
	<-forwardDone

	if derr == nil {
		s.store.UpdateProgress(model.DownloadProgress{ID: rec.ID, Progress: 100, FilePath: path})
		if tr := s.store.SetStatus(rec.ID, model.StatusCompleted); tr.Applied {
			s.mu.Lock()
			delete(s.attempts, rec.ID)
			s.mu.Unlock()
			s.publish(model.EventDownloadCompleted, rec.ID, map[string]any{"file_path": path})
			if s.recorder != nil {
				if err := s.recorder.RecordCompleted(tr.Record); err != nil {
					s.log.Error("record completed download", "id", rec.ID, "error", err)
				}
			}
		}
		return
	}

	switch derr.Kind {
	case engine.KindCancelled:
		// The record already reads cancelled or paused; nothing to do.
	default:
		if tr := s.store.SetError(rec.ID, derr.Kind, derr.Message); tr.Applied {
			s.publish(model.EventDownloadFailed, rec.ID, map[string]any{
				"error_code": derr.Kind,
				"error":      derr.Message,
				"retryable":  derr.Retryable,
			})
			if s.recorder != nil {
				if err := s.recorder.RecordFailed(tr.Record); err != nil {
					s.log.Error("record failed download", "id", rec.ID, "error", err)
				}
			}
			if derr.Retryable {
				s.maybeAutoRetry(rec.ID)
			}
		}
	}
}

// maybeAutoRetry requeues a retryable failure after a jittered exponential
// backoff, up to the configured attempt budget.
func (s *Service) maybeAutoRetry(id string) {
	cfg := s.settings.Get().Download
	if !cfg.AutoRetry || cfg.RetryAttempts <= 0 {
		return
	}
	s.mu.Lock()
	attempt := s.attempts[id]
	if attempt >= cfg.RetryAttempts {
		s.mu.Unlock()
		return
	}
	s.attempts[id] = attempt + 1
	s.mu.Unlock()

	delay := retryBackoff(attempt)
	s.log.Info("auto retry scheduled", "id", id, "attempt", attempt+1, "delay", delay)
	time.AfterFunc(delay, func() {
		if tr := s.store.Retry(id); tr.Applied {
			s.publish(model.EventDownloadQueued, id, map[string]any{"retried": true, "attempt": attempt + 1})
			s.pump()
		}
	})
}

// retryBackoff doubles per attempt from one second, with 20% jitter so
// simultaneous failures do not requeue in lockstep.
func retryBackoff(attempt int) time.Duration {
	base := time.Second << attempt
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 5))
	return base + jitter
}

// Cancel is optimistic: the record flips to cancelled immediately; killing
// the engine process is best-effort cleanup.
func (s *Service) Cancel(id string) model.DownloadRecord {
	tr := s.store.Cancel(id)
	if tr.Applied {
		s.stopProcess(id)
		s.publish(model.EventDownloadCancelled, id, nil)
		s.pump()
	}
	return tr.Record
}

// Pause kills the engine process and parks the record. yt-dlp resumes
// partial files on the next run, so pause/resume survives the process
// boundary.
func (s *Service) Pause(id string) model.DownloadRecord {
	tr := s.store.Pause(id)
	if tr.Applied {
		s.stopProcess(id)
		s.publish(model.EventDownloadPaused, id, nil)
		s.pump()
	}
	return tr.Record
}

func (s *Service) Resume(id string) model.DownloadRecord {
	tr := s.store.Resume(id)
	if tr.Applied {
		s.publish(model.EventDownloadQueued, id, map[string]any{"resumed": true})
		s.pump()
	}
	return tr.Record
}

func (s *Service) Retry(id string) model.DownloadRecord {
	tr := s.store.Retry(id)
	if tr.Applied {
		s.mu.Lock()
		delete(s.attempts, id)
		s.mu.Unlock()
		s.publish(model.EventDownloadQueued, id, map[string]any{"retried": true})
		s.pump()
	}
	return tr.Record
}

// Delete removes the record, stopping it first if needed. deleteFile also
// removes the downloaded media from disk.
func (s *Service) Delete(id string, deleteFile bool) bool {
	s.store.Cancel(id)
	s.stopProcess(id)
	rec, ok := s.store.Remove(id)
	if !ok {
		return false
	}
	if deleteFile && rec.FilePath != "" {
		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("delete download file", "path", rec.FilePath, "error", err)
		}
	}
	s.pump()
	return true
}

func (s *Service) stopProcess(id string) {
	s.mu.Lock()
	cancel := s.cancels[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.registry.Kill(id)
}

func (s *Service) Get(id string) (model.DownloadRecord, error) {
	return s.store.Get(id)
}

// GetProgress is the polling fallback for clients without a live event
// channel.
func (s *Service) GetProgress(id string) (model.DownloadProgress, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return model.DownloadProgress{}, err
	}
	return model.DownloadProgress{
		ID:         rec.ID,
		Progress:   rec.Progress,
		Speed:      rec.Speed,
		ETA:        rec.ETA,
		Downloaded: rec.Downloaded,
		Total:      rec.FileSize,
		FilePath:   rec.FilePath,
		Title:      rec.Title,
	}, nil
}

func (s *Service) List(filter model.DownloadFilter) []model.DownloadRecord {
	return s.store.List(filter)
}

func (s *Service) History() []model.DownloadRecord {
	return s.store.History()
}

func (s *Service) ClearCompleted() int {
	return s.store.ClearCompleted()
}

func (s *Service) ListEventsFrom(fromSeq int64) []model.DownloadEvent {
	return s.store.ListEventsFromSeq(fromSeq)
}

// GetInfo probes video metadata without downloading.
func (s *Service) GetInfo(ctx context.Context, url string) (model.VideoInfo, error) {
	if !ValidateURL(url) {
		return model.VideoInfo{}, ErrInvalidURL
	}
	info, err := s.dl.FetchInfo(ctx, url)
	if err != nil {
		return model.VideoInfo{}, err
	}
	return info, nil
}

// GetStreamingInfo resolves direct stream URLs for in-app preview.
func (s *Service) GetStreamingInfo(ctx context.Context, url string) (model.StreamingInfo, error) {
	info, err := s.GetInfo(ctx, url)
	if err != nil {
		return model.StreamingInfo{}, err
	}
	streams, serr := SelectStreams(info)
	if serr != nil {
		return model.StreamingInfo{}, serr
	}
	return streams, nil
}

// EngineVersion reports the downloader binary version for diagnostics.
func (s *Service) EngineVersion(ctx context.Context) (string, error) {
	return s.dl.Version(ctx)
}

// AvailableQualities lists the distinct heights a video offers.
func (s *Service) AvailableQualities(ctx context.Context, url string) ([]string, error) {
	info, err := s.GetInfo(ctx, url)
	if err != nil {
		return nil, err
	}
	return engine.AvailableQualities(info), nil
}

// watchdog flags downloads that stopped making byte progress. A stalled
// record is not terminal; the next engine snapshot recovers it.
func (s *Service) watchdog() {
	defer close(s.watchDone)
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopWatch:
			return
		case <-ticker.C:
			s.checkStalls()
		}
	}
}

func (s *Service) checkStalls() {
	cutoff := time.Now().UTC().Add(-s.stallAfter)
	for _, rec := range s.store.StalledSince(cutoff) {
		if tr := s.store.MarkStalled(rec.ID); tr.Applied {
			s.log.Warn("download stalled", "id", rec.ID, "url", rec.URL)
			s.publish(model.EventDownloadStalled, rec.ID, nil)
		}
	}
}

func (s *Service) publish(eventType model.DownloadEventType, downloadID string, payload map[string]any) {
	evt := s.store.AppendEvent(model.DownloadEvent{
		DownloadID: downloadID,
		Type:       eventType,
		TS:         time.Now().UTC(),
		Payload:    payload,
	})
	s.hub.Publish(events.TopicDownloads, evt)
}
