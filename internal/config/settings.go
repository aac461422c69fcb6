package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// settingsFile is the on disk layout of saved settings, it nests under the
// same key as the main config file so it can be layered over it
type settingsFile struct {
	Settings Settings `yaml:"settings"`
}

// SaveSettings writes the settings to path, replacing any previous file
func SaveSettings(path string, s Settings) error {

	data, err := yaml.Marshal(settingsFile{Settings: s})

	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace settings: %w", err)
	}

	return nil
}

// ReadSettings reads settings previously written by SaveSettings, fields
// missing from the file keep the values of base
func ReadSettings(path string, base Settings) (Settings, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return base, fmt.Errorf("failed to read settings: %w", err)
	}

	sf := settingsFile{Settings: base}

	if err := yaml.Unmarshal(data, &sf); err != nil {
		return base, fmt.Errorf("failed to parse settings: %w", err)
	}

	return sf.Settings, nil
}

// PersistFunc is called with the new settings after every successful update
type PersistFunc func(Settings) error

// FilePersister returns a PersistFunc that saves settings to path
func FilePersister(path string) PersistFunc {
	return func(s Settings) error {
		return SaveSettings(path, s)
	}
}

// Store holds the current runtime settings.  Readers take a lock free
// snapshot, writers are serialized and validated
type Store struct {
	current atomic.Pointer[Settings]
	// mu serializes updates
	mu      sync.Mutex
	persist PersistFunc
}

// NewStore returns a Store holding the given settings, persist may be nil
func NewStore(initial Settings, persist PersistFunc) (*Store, error) {

	if err := initial.Validate(); err != nil {
		return nil, err
	}

	s := &Store{persist: persist}
	s.current.Store(&initial)

	return s, nil
}

// Snapshot returns a copy of the current settings
func (s *Store) Snapshot() Settings {
	return *s.current.Load()
}

// Update applies fn to a copy of the current settings, validates the
// result, persists it and then publishes it.  On any error the current
// settings are left unchanged
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	return s.Apply(func(cur *Settings) error {
		fn(cur)
		return nil
	})
}

// Apply is Update for changes that can fail.  fn runs on a copy of the
// current settings while the store is locked, an error from fn leaves the
// settings unchanged and is returned as is
func (s *Store) Apply(fn func(*Settings) error) (Settings, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current.Load()

	if err := fn(&next); err != nil {
		return s.Snapshot(), err
	}

	if err := next.Validate(); err != nil {
		return s.Snapshot(), err
	}

	if s.persist != nil {
		if err := s.persist(next); err != nil {
			return s.Snapshot(), fmt.Errorf("failed to persist settings: %w", err)
		}
	}

	s.current.Store(&next)

	return next, nil
}

// ToggleCamera flips the camera enabled flag
func (s *Store) ToggleCamera() (Settings, error) {
	return s.Update(func(cur *Settings) {
		cur.CameraEnabled = !cur.CameraEnabled
	})
}
