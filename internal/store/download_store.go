package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"clipy/host/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")
)

const (
	historyLimit = 100
	eventBacklog = 1000
)

// Transition is the result of a guarded status change. Guarded operations
// never fail on a record that exists; they either apply or report Ignored
// so callers can skip side effects without surfacing an error.
type Transition struct {
	Applied bool
	Record  model.DownloadRecord
}

// DownloadStore is the single authoritative collection of download records.
// The engine's event goroutines and the API mutate it through the same
// mutex, so every operation observes a consistent snapshot.
type DownloadStore struct {
	mu sync.RWMutex

	downloads map[string]model.DownloadRecord
	order     []string

	history []model.DownloadRecord

	events   []model.DownloadEvent
	eventSeq int64
}

func NewDownloadStore() *DownloadStore {
	return &DownloadStore{
		downloads: map[string]model.DownloadRecord{},
	}
}

// Add creates a pending record for url and returns it.
func (s *DownloadStore) Add(url string, opts model.DownloadOption) model.DownloadRecord {
	return s.AddWithID(uuid.NewString(), url, opts)
}

// AddWithID creates a record under a caller-chosen id. An existing id is
// overwritten in place; its queue position is kept.
func (s *DownloadStore) AddWithID(id, url string, opts model.DownloadOption) model.DownloadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := model.DownloadRecord{
		ID:        id,
		URL:       url,
		Status:    model.StatusPending,
		Options:   opts,
		CreatedAt: time.Now().UTC(),
	}
	if _, exists := s.downloads[id]; !exists {
		s.order = append(s.order, id)
	}
	s.downloads[id] = rec
	return rec
}

// UpdateProgress merges a snapshot into the record. Unknown ids and records
// already in a terminal state are ignored, which makes late engine events
// after cancel or completion harmless. Progress never regresses; the same
// snapshot applied twice leaves the record unchanged.
func (s *DownloadStore) UpdateProgress(p model.DownloadProgress) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.downloads[p.ID]
	if !ok || rec.Status.IsTerminal() {
		return Transition{Applied: false, Record: rec}
	}
	// A killed process can flush one last snapshot; a paused record must
	// not wake from it.
	if rec.Status == model.StatusPaused {
		return Transition{Applied: false, Record: rec}
	}
	if p.Progress > rec.Progress {
		rec.Progress = p.Progress
	}
	if p.Speed != "" {
		rec.Speed = p.Speed
	}
	if p.ETA != "" {
		rec.ETA = p.ETA
	}
	if p.Downloaded > 0 {
		rec.Downloaded = p.Downloaded
	}
	if p.Total > 0 {
		rec.FileSize = p.Total
	}
	if p.FilePath != "" {
		rec.FilePath = p.FilePath
	}
	if p.Title != "" {
		rec.Title = p.Title
	}
	rec.Status = model.StatusDownloading
	rec.LastProgressAt = time.Now().UTC()
	s.downloads[p.ID] = rec
	return Transition{Applied: true, Record: rec}
}

// SetStatus forces a status. Terminal records stay terminal. Completion
// snaps progress to 100 and stamps CompletedAt exactly once.
func (s *DownloadStore) SetStatus(id string, status model.DownloadStatus) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.downloads[id]
	if !ok || rec.Status.IsTerminal() {
		return Transition{Applied: false, Record: rec}
	}
	rec.Status = status
	if status == model.StatusCompleted {
		rec.Progress = 100
		now := time.Now().UTC()
		rec.CompletedAt = &now
		rec.Speed = ""
		rec.ETA = ""
	}
	s.downloads[id] = rec
	return Transition{Applied: true, Record: rec}
}

// SetError marks a record failed with the given code and message.
func (s *DownloadStore) SetError(id, code, message string) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.downloads[id]
	if !ok || rec.Status.IsTerminal() {
		return Transition{Applied: false, Record: rec}
	}
	rec.Status = model.StatusFailed
	rec.ErrorCode = code
	rec.Error = message
	s.downloads[id] = rec
	return Transition{Applied: true, Record: rec}
}

// MarkStarted moves a pending record into downloading and stamps StartedAt.
func (s *DownloadStore) MarkStarted(id string) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.downloads[id]
	if !ok || rec.Status.IsTerminal() {
		return Transition{Applied: false, Record: rec}
	}
	rec.Status = model.StatusFetching
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	rec.LastProgressAt = time.Now().UTC()
	s.downloads[id] = rec
	return Transition{Applied: true, Record: rec}
}

// Pause applies only to a record with a live transfer. Pending records have
// no process to stop and stay pending; stalled counts as a live transfer
// since the process is still running, just silent.
func (s *DownloadStore) Pause(id string) Transition {
	return s.guarded(id, model.StatusPaused, func(st model.DownloadStatus) bool {
		return st == model.StatusDownloading || st == model.StatusStalled
	})
}

// Resume re-queues a paused record.
func (s *DownloadStore) Resume(id string) Transition {
	return s.guarded(id, model.StatusPending, func(st model.DownloadStatus) bool {
		return st == model.StatusPaused
	})
}

// Cancel moves any non-terminal record to cancelled.
func (s *DownloadStore) Cancel(id string) Transition {
	return s.guarded(id, model.StatusCancelled, func(st model.DownloadStatus) bool {
		return !st.IsTerminal()
	})
}

// Retry re-queues a failed or cancelled record, clearing progress and error
// state from the previous attempt.
func (s *DownloadStore) Retry(id string) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.downloads[id]
	if !ok {
		return Transition{}
	}
	if rec.Status != model.StatusFailed && rec.Status != model.StatusCancelled {
		return Transition{Applied: false, Record: rec}
	}
	rec.Status = model.StatusPending
	rec.Progress = 0
	rec.Downloaded = 0
	rec.Speed = ""
	rec.ETA = ""
	rec.Error = ""
	rec.ErrorCode = ""
	rec.StartedAt = time.Time{}
	rec.CompletedAt = nil
	s.downloads[id] = rec
	return Transition{Applied: true, Record: rec}
}

func (s *DownloadStore) guarded(id string, to model.DownloadStatus, allow func(model.DownloadStatus) bool) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.downloads[id]
	if !ok {
		return Transition{}
	}
	if !allow(rec.Status) {
		return Transition{Applied: false, Record: rec}
	}
	rec.Status = to
	s.downloads[id] = rec
	return Transition{Applied: true, Record: rec}
}

// Remove deletes a record. Removing an unknown id is a no-op.
func (s *DownloadStore) Remove(id string) (model.DownloadRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.downloads[id]
	if !ok {
		return model.DownloadRecord{}, false
	}
	delete(s.downloads, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return rec, true
}

func (s *DownloadStore) Get(id string) (model.DownloadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.downloads[id]
	if !ok {
		return model.DownloadRecord{}, ErrNotFound
	}
	return rec, nil
}

// List returns records in insertion order, filtered.
func (s *DownloadStore) List(filter model.DownloadFilter) []model.DownloadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DownloadRecord, 0, len(s.order))
	for _, id := range s.order {
		rec, ok := s.downloads[id]
		if !ok {
			continue
		}
		switch filter {
		case model.FilterActive:
			if rec.Status.IsTerminal() {
				continue
			}
		case model.FilterCompleted:
			if rec.Status != model.StatusCompleted {
				continue
			}
		case model.FilterFailed:
			if rec.Status != model.StatusFailed {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// ActiveCount counts records holding a queue slot.
func (s *DownloadStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.downloads {
		if rec.Status.IsActive() {
			n++
		}
	}
	return n
}

// ClearCompleted moves every terminal record (completed, failed, cancelled)
// into history and returns how many moved. History stays newest-first and
// capped.
func (s *DownloadStore) ClearCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := 0
	remaining := s.order[:0]
	for _, id := range s.order {
		rec, ok := s.downloads[id]
		if !ok {
			continue
		}
		if rec.Status.IsTerminal() {
			delete(s.downloads, id)
			s.pushHistoryLocked(rec)
			moved++
			continue
		}
		remaining = append(remaining, id)
	}
	s.order = remaining
	return moved
}

// MoveToHistory moves a single record regardless of status.
func (s *DownloadStore) MoveToHistory(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.downloads[id]
	if !ok {
		return false
	}
	delete(s.downloads, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.pushHistoryLocked(rec)
	return true
}

func (s *DownloadStore) pushHistoryLocked(rec model.DownloadRecord) {
	s.history = append([]model.DownloadRecord{rec}, s.history...)
	sort.SliceStable(s.history, func(i, j int) bool {
		return s.history[i].CreatedAt.After(s.history[j].CreatedAt)
	})
	if len(s.history) > historyLimit {
		s.history = s.history[:historyLimit]
	}
}

func (s *DownloadStore) History() []model.DownloadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.DownloadRecord(nil), s.history...)
}

// AppendEvent assigns the next sequence number and records the event in a
// bounded backlog used for SSE replay.
func (s *DownloadStore) AppendEvent(evt model.DownloadEvent) model.DownloadEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventSeq++
	evt.Seq = s.eventSeq
	evt.EventID = uuid.NewString()
	s.events = append(s.events, evt)
	if len(s.events) > eventBacklog {
		s.events = s.events[len(s.events)-eventBacklog:]
	}
	return evt
}

// ListEventsFromSeq returns events with Seq > fromSeq, oldest first.
func (s *DownloadStore) ListEventsFromSeq(fromSeq int64) []model.DownloadEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fromSeq <= 0 {
		return append([]model.DownloadEvent(nil), s.events...)
	}
	out := make([]model.DownloadEvent, 0, len(s.events))
	for _, e := range s.events {
		if e.Seq > fromSeq {
			out = append(out, e)
		}
	}
	return out
}

// StalledSince returns downloading records without byte progress since the
// cutoff. The watchdog marks them stalled.
func (s *DownloadStore) StalledSince(cutoff time.Time) []model.DownloadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DownloadRecord
	for _, rec := range s.downloads {
		if rec.Status == model.StatusDownloading && !rec.LastProgressAt.IsZero() && rec.LastProgressAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// MarkStalled flags a downloading record as stalled. A later progress
// event moves it back to downloading via UpdateProgress.
func (s *DownloadStore) MarkStalled(id string) Transition {
	return s.guarded(id, model.StatusStalled, func(st model.DownloadStatus) bool {
		return st == model.StatusDownloading
	})
}
