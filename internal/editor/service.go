// Package editor manages timeline projects: tracks, clips, selection,
// undo/redo history, persistence to the projects directory and export
// through the media engine.
package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipy/host/internal/model"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrTrackNotFound   = errors.New("track not found")
	ErrClipNotFound    = errors.New("clip not found")
	ErrTrackLocked     = errors.New("track is locked")
)

// Service holds open projects in memory. Every mutation snapshots the
// previous state into the project's history and recomputes the timeline
// duration before returning.
type Service struct {
	projectsDir string
	log         *slog.Logger

	mu        sync.RWMutex
	projects  map[string]*model.Project
	histories map[string]*history
	selection map[string][]string
}

func NewService(projectsDir string, logger *slog.Logger) *Service {
	return &Service{
		projectsDir: projectsDir,
		log:         logger,
		projects:    map[string]*model.Project{},
		histories:   map[string]*history{},
		selection:   map[string][]string{},
	}
}

// NewProject creates a project seeded with one video and one audio track.
func (s *Service) NewProject(name string, settings model.ProjectSettings) model.Project {
	now := time.Now().UTC()
	p := &model.Project{
		ID:   uuid.NewString(),
		Name: name,
		Tracks: []model.Track{
			{ID: uuid.NewString(), Name: "Video 1", Type: model.TrackVideo, Height: 100},
			{ID: uuid.NewString(), Name: "Audio 1", Type: model.TrackAudio, Height: 60},
		},
		Settings:   settings,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if p.Settings.Width == 0 {
		p.Settings = model.ProjectSettings{Width: 1920, Height: 1080, FrameRate: 30, SampleRate: 48000}
	}
	s.mu.Lock()
	s.projects[p.ID] = p
	s.histories[p.ID] = newHistory()
	s.mu.Unlock()
	return p.Clone()
}

func (s *Service) Get(id string) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, ErrProjectNotFound
	}
	return p.Clone(), nil
}

// List returns open projects sorted by most recent modification.
func (s *Service) List() []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sortProjects(out)
	return out
}

func sortProjects(ps []model.Project) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].ModifiedAt.After(ps[j-1].ModifiedAt); j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

// CloseProject drops a project from memory without touching its file.
func (s *Service) CloseProject(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return false
	}
	delete(s.projects, id)
	delete(s.histories, id)
	delete(s.selection, id)
	return true
}

// mutate runs fn against the live project under the write lock, pushing a
// history snapshot first and recomputing duration after. fn returning an
// error aborts without a snapshot.
func (s *Service) mutate(projectID string, fn func(p *model.Project) error) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return model.Project{}, ErrProjectNotFound
	}
	snapshot := p.Clone()
	if err := fn(p); err != nil {
		return model.Project{}, err
	}
	s.histories[projectID].push(snapshot)
	p.RecomputeDuration()
	p.ModifiedAt = time.Now().UTC()
	return p.Clone(), nil
}

// AddTrack appends a track named after its type with a running number
// scoped to that type, "Video 2" next to "Video 1".
func (s *Service) AddTrack(projectID string, trackType model.TrackType) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		count := 0
		for _, tr := range p.Tracks {
			if tr.Type == trackType {
				count++
			}
		}
		height := 100
		if trackType == model.TrackAudio {
			height = 60
		}
		p.Tracks = append(p.Tracks, model.Track{
			ID:     uuid.NewString(),
			Name:   fmt.Sprintf("%s %d", trackType.Label(), count+1),
			Type:   trackType,
			Height: height,
		})
		return nil
	})
}

func (s *Service) RemoveTrack(projectID, trackID string) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		for i, tr := range p.Tracks {
			if tr.ID == trackID {
				p.Tracks = append(p.Tracks[:i], p.Tracks[i+1:]...)
				return nil
			}
		}
		return ErrTrackNotFound
	})
}

func (s *Service) SetTrackMuted(projectID, trackID string, muted bool) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr := findTrack(p, trackID)
		if tr == nil {
			return ErrTrackNotFound
		}
		tr.Muted = muted
		return nil
	})
}

func (s *Service) SetTrackLocked(projectID, trackID string, locked bool) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr := findTrack(p, trackID)
		if tr == nil {
			return ErrTrackNotFound
		}
		tr.Locked = locked
		return nil
	})
}

// AddClip places a media file on a track. SourceEnd falling back to the
// full duration keeps trim state explicit from the start.
func (s *Service) AddClip(projectID, trackID, name, sourcePath string, startTime, duration float64) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr := findTrack(p, trackID)
		if tr == nil {
			return ErrTrackNotFound
		}
		if tr.Locked {
			return ErrTrackLocked
		}
		tr.Clips = append(tr.Clips, model.Clip{
			ID:          uuid.NewString(),
			Name:        name,
			SourcePath:  sourcePath,
			StartTime:   startTime,
			EndTime:     startTime + duration,
			SourceStart: 0,
			SourceEnd:   duration,
			Properties:  model.DefaultClipProperties(),
		})
		return nil
	})
}

func (s *Service) RemoveClip(projectID, clipID string) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr, idx := findClip(p, clipID)
		if tr == nil {
			return ErrClipNotFound
		}
		if tr.Locked {
			return ErrTrackLocked
		}
		tr.Clips = append(tr.Clips[:idx], tr.Clips[idx+1:]...)
		return nil
	})
}

// SplitClip cuts a clip at a timeline position. The source range splits
// proportionally so speed-adjusted clips keep their mapping. A position
// outside the clip is rejected.
func (s *Service) SplitClip(projectID, clipID string, at float64) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr, idx := findClip(p, clipID)
		if tr == nil {
			return ErrClipNotFound
		}
		if tr.Locked {
			return ErrTrackLocked
		}
		c := tr.Clips[idx]
		if at <= c.StartTime || at >= c.EndTime {
			return fmt.Errorf("split position %.3f outside clip range %.3f..%.3f", at, c.StartTime, c.EndTime)
		}
		frac := (at - c.StartTime) / (c.EndTime - c.StartTime)
		sourceCut := c.SourceStart + frac*(c.SourceEnd-c.SourceStart)

		right := c
		right.ID = uuid.NewString()
		right.Name = c.Name + " (2)"
		right.StartTime = at
		right.SourceStart = sourceCut

		tr.Clips[idx].EndTime = at
		tr.Clips[idx].SourceEnd = sourceCut

		tr.Clips = append(tr.Clips, model.Clip{})
		copy(tr.Clips[idx+2:], tr.Clips[idx+1:])
		tr.Clips[idx+1] = right
		return nil
	})
}

// DuplicateClip copies a clip onto the same track, placed where the
// original ends.
func (s *Service) DuplicateClip(projectID, clipID string) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr, idx := findClip(p, clipID)
		if tr == nil {
			return ErrClipNotFound
		}
		if tr.Locked {
			return ErrTrackLocked
		}
		c := tr.Clips[idx]
		dup := c
		dup.ID = uuid.NewString()
		dup.Name = c.Name + " (copy)"
		dup.StartTime = c.EndTime
		dup.EndTime = c.EndTime + c.Duration()
		tr.Clips = append(tr.Clips, dup)
		return nil
	})
}

// MoveClip shifts a clip to a new start time, optionally onto another
// track of the same type.
func (s *Service) MoveClip(projectID, clipID, targetTrackID string, newStart float64) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr, idx := findClip(p, clipID)
		if tr == nil {
			return ErrClipNotFound
		}
		if tr.Locked {
			return ErrTrackLocked
		}
		if newStart < 0 {
			newStart = 0
		}
		c := tr.Clips[idx]
		dur := c.Duration()
		c.StartTime = newStart
		c.EndTime = newStart + dur

		if targetTrackID == "" || targetTrackID == tr.ID {
			tr.Clips[idx] = c
			return nil
		}
		dst := findTrack(p, targetTrackID)
		if dst == nil {
			return ErrTrackNotFound
		}
		if dst.Locked {
			return ErrTrackLocked
		}
		if dst.Type != tr.Type {
			return fmt.Errorf("cannot move %s clip onto %s track", tr.Type, dst.Type)
		}
		tr.Clips = append(tr.Clips[:idx], tr.Clips[idx+1:]...)
		dst.Clips = append(dst.Clips, c)
		return nil
	})
}

func (s *Service) UpdateClipProperties(projectID, clipID string, props model.ClipProperties) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr, idx := findClip(p, clipID)
		if tr == nil {
			return ErrClipNotFound
		}
		if tr.Locked {
			return ErrTrackLocked
		}
		tr.Clips[idx].Properties = props
		return nil
	})
}

// TrimClip adjusts a clip's in and out points on the timeline, moving the
// source range with the same proportional mapping as SplitClip.
func (s *Service) TrimClip(projectID, clipID string, newStart, newEnd float64) (model.Project, error) {
	return s.mutate(projectID, func(p *model.Project) error {
		tr, idx := findClip(p, clipID)
		if tr == nil {
			return ErrClipNotFound
		}
		if tr.Locked {
			return ErrTrackLocked
		}
		c := tr.Clips[idx]
		if newEnd <= newStart {
			return fmt.Errorf("trim range %.3f..%.3f is empty", newStart, newEnd)
		}
		span := c.EndTime - c.StartTime
		srcSpan := c.SourceEnd - c.SourceStart
		startFrac := (newStart - c.StartTime) / span
		endFrac := (newEnd - c.StartTime) / span
		c.SourceStart = c.SourceStart + startFrac*srcSpan
		c.SourceEnd = c.SourceStart + (endFrac-startFrac)*srcSpan
		c.StartTime = newStart
		c.EndTime = newEnd
		tr.Clips[idx] = c
		return nil
	})
}

// Select replaces the selection set for a project. Unknown clip ids are
// dropped silently.
func (s *Service) Select(projectID string, clipIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	var kept []string
	for _, id := range clipIDs {
		if tr, _ := findClip(p, id); tr != nil {
			kept = append(kept, id)
		}
	}
	s.selection[projectID] = kept
	return nil
}

func (s *Service) Selection(projectID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.selection[projectID]...)
}

// DeleteSelected removes every selected clip and clears the selection.
// Clips on locked tracks survive and stay selected.
func (s *Service) DeleteSelected(projectID string) (model.Project, error) {
	out, err := s.mutate(projectID, func(p *model.Project) error {
		var kept []string
		for _, id := range s.selection[projectID] {
			tr, idx := findClip(p, id)
			if tr == nil {
				continue
			}
			if tr.Locked {
				kept = append(kept, id)
				continue
			}
			tr.Clips = append(tr.Clips[:idx], tr.Clips[idx+1:]...)
		}
		s.selection[projectID] = kept
		return nil
	})
	return out, err
}

// Undo restores the previous snapshot; the current state moves to the redo
// stack.
func (s *Service) Undo(projectID string) (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return model.Project{}, false
	}
	prev, ok := s.histories[projectID].undo(p.Clone())
	if !ok {
		return p.Clone(), false
	}
	restored := prev.Clone()
	s.projects[projectID] = &restored
	return restored.Clone(), true
}

func (s *Service) Redo(projectID string) (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return model.Project{}, false
	}
	next, ok := s.histories[projectID].redo(p.Clone())
	if !ok {
		return p.Clone(), false
	}
	restored := next.Clone()
	s.projects[projectID] = &restored
	return restored.Clone(), true
}

// Save writes the project to <projectsDir>/<id>.json, stamping ModifiedAt.
func (s *Service) Save(projectID string) (string, error) {
	s.mu.Lock()
	p, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		return "", ErrProjectNotFound
	}
	p.ModifiedAt = time.Now().UTC()
	doc := p.Clone()
	s.mu.Unlock()

	if err := os.MkdirAll(s.projectsDir, 0o755); err != nil {
		return "", err
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.projectsDir, doc.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	s.log.Info("project saved", "id", doc.ID, "path", path)
	return path, nil
}

// Load reads a project file into memory with a fresh history.
func (s *Service) Load(path string) (model.Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Project{}, err
	}
	var p model.Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Project{}, fmt.Errorf("parse project file: %w", err)
	}
	if p.ID == "" {
		return model.Project{}, errors.New("project file missing id")
	}
	p.RecomputeDuration()
	s.mu.Lock()
	live := p.Clone()
	s.projects[p.ID] = &live
	s.histories[p.ID] = newHistory()
	delete(s.selection, p.ID)
	s.mu.Unlock()
	return p, nil
}

// SavedProjects lists project files in the projects directory.
func (s *Service) SavedProjects() ([]string, error) {
	entries, err := os.ReadDir(s.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			out = append(out, filepath.Join(s.projectsDir, e.Name()))
		}
	}
	return out, nil
}

func (s *Service) DeleteSaved(projectID string) error {
	path := filepath.Join(s.projectsDir, projectID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func findTrack(p *model.Project, trackID string) *model.Track {
	for i := range p.Tracks {
		if p.Tracks[i].ID == trackID {
			return &p.Tracks[i]
		}
	}
	return nil
}

func findClip(p *model.Project, clipID string) (*model.Track, int) {
	for i := range p.Tracks {
		for j := range p.Tracks[i].Clips {
			if p.Tracks[i].Clips[j].ID == clipID {
				return &p.Tracks[i], j
			}
		}
	}
	return nil, -1
}
