package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var ErrUnknownKey = errors.New("unknown settings key")

const defaultSaveDelay = 500 * time.Millisecond

// Service owns the in-memory settings document and persists it to
// config.json. Rapid updates coalesce into a single debounced write.
type Service struct {
	path      string
	log       *slog.Logger
	saveDelay time.Duration

	mu      sync.Mutex
	current AppSettings
	timer   *time.Timer
	dirty   bool
}

func NewService(path string, logger *slog.Logger) (*Service, error) {
	s := &Service{
		path:      path,
		log:       logger,
		saveDelay: defaultSaveDelay,
		current:   Defaults(),
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Unmarshal over defaults so keys absent from an older config.json
		// keep their default values.
		if err := json.Unmarshal(raw, &s.current); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if err := s.writeFile(s.current); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

func (s *Service) Get() AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Service) Update(next AppSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
	s.scheduleSaveLocked()
}

func (s *Service) Reset() AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Defaults()
	s.scheduleSaveLocked()
	return s.current
}

// GetKey resolves a dotted key path such as "download.defaultQuality"
// against the JSON form of the document.
func (s *Service) GetKey(key string) (any, error) {
	s.mu.Lock()
	doc := s.current
	s.mu.Unlock()

	node, err := toMap(doc)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(key, ".")
	var cur any = node
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		cur, ok = m[p]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}
	return cur, nil
}

// UpdateKey sets a dotted key path. The key must already exist in the
// document; settings never grow ad-hoc keys.
func (s *Service) UpdateKey(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := toMap(s.current)
	if err != nil {
		return err
	}
	parts := strings.Split(key, ".")
	cur := node
	for i, p := range parts {
		existing, ok := cur[p]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		if i == len(parts)-1 {
			cur[p] = value
			break
		}
		next, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		cur = next
	}

	raw, err := json.Marshal(node)
	if err != nil {
		return err
	}
	var updated AppSettings
	if err := json.Unmarshal(raw, &updated); err != nil {
		return fmt.Errorf("apply %s: %w", key, err)
	}
	s.current = updated
	s.scheduleSaveLocked()
	return nil
}

// Export returns the document as pretty-printed JSON.
func (s *Service) Export() ([]byte, error) {
	s.mu.Lock()
	doc := s.current
	s.mu.Unlock()
	return json.MarshalIndent(doc, "", "  ")
}

// Import replaces the document from JSON, keeping defaults for absent keys.
func (s *Service) Import(raw []byte) error {
	next := Defaults()
	if err := json.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("import settings: %w", err)
	}
	s.Update(next)
	return nil
}

// Flush writes any pending changes immediately. Called on shutdown.
func (s *Service) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dirty := s.dirty
	s.dirty = false
	doc := s.current
	s.mu.Unlock()
	if !dirty {
		return nil
	}
	return s.writeFile(doc)
}

func (s *Service) scheduleSaveLocked() {
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.saveDelay, func() {
		s.mu.Lock()
		s.dirty = false
		s.timer = nil
		doc := s.current
		s.mu.Unlock()
		if err := s.writeFile(doc); err != nil {
			s.log.Error("settings save failed", "path", s.path, "error", err)
		}
	})
}

func (s *Service) writeFile(doc AppSettings) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func toMap(doc AppSettings) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var node map[string]any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	return node, nil
}
