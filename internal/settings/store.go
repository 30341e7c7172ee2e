package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists settings to a JSON file.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Settings
}

// NewStore creates a store and loads the file at path. A missing file yields defaults.
func NewStore(path string, defaults Settings) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure settings directory: %w", err)
	}

	s := &Store{path: path, current: defaults}
	if err := s.load(defaults); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and persists next.
func (s *Store) Update(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	s.current = next
	if err := s.persistLocked(); err != nil {
		s.current = prev
		return err
	}
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load(defaults Settings) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var stored Settings
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	s.current = defaults.Merge(stored)
	if s.current.UpdateInterval <= 0 {
		s.current.UpdateInterval = DefaultUpdateInterval
	}
	return nil
}

func (s *Store) persistLocked() error {
	bytes, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o600); err != nil {
		return fmt.Errorf("write temp settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}
