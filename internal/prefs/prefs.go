// Package prefs persists dashboard preferences (theme and active tab) in a
// small YAML file next to the binary.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Theme values.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Tab values.
const (
	TabLive     = "live"
	TabGallery  = "gallery"
	TabSettings = "settings"
)

// ErrInvalid is returned for unknown theme or tab values.
var ErrInvalid = errors.New("invalid preference")

// Preferences is the persisted state.
type Preferences struct {
	Theme     string `yaml:"theme" json:"theme"`
	ActiveTab string `yaml:"activeTab" json:"activeTab"`
}

// Default returns light theme with the live tab selected.
func Default() Preferences {
	return Preferences{Theme: ThemeLight, ActiveTab: TabLive}
}

// Validate checks both fields.
func (p Preferences) Validate() error {
	if !validTheme(p.Theme) {
		return fmt.Errorf("%w: theme %q", ErrInvalid, p.Theme)
	}
	if !validTab(p.ActiveTab) {
		return fmt.Errorf("%w: tab %q", ErrInvalid, p.ActiveTab)
	}
	return nil
}

func validTheme(v string) bool { return v == ThemeLight || v == ThemeDark }

func validTab(v string) bool {
	switch v {
	case TabLive, TabGallery, TabSettings:
		return true
	}
	return false
}

// Store reads the file once on Load and rewrites it on every Save. An empty
// path keeps preferences in memory only.
type Store struct {
	path string

	mu    sync.RWMutex
	prefs Preferences
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path, prefs: Default()}
}

// Load reads the file. A missing file leaves the defaults in place. Unknown
// values in the file fall back to their defaults.
func (s *Store) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return s.prefs, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.prefs, nil
	}
	if err != nil {
		return s.prefs, fmt.Errorf("read preferences: %w", err)
	}

	var p Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return s.prefs, fmt.Errorf("parse preferences %s: %w", s.path, err)
	}

	def := Default()
	if !validTheme(p.Theme) {
		p.Theme = def.Theme
	}
	if !validTab(p.ActiveTab) {
		p.ActiveTab = def.ActiveTab
	}
	s.prefs = p
	return p, nil
}

// Get returns the current preferences.
func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Save validates p, writes the file and then stores p. On a write error the
// previous preferences stay in effect.
func (s *Store) Save(p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		s.prefs = p
		return nil
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	s.prefs = p
	return nil
}
