// Package prefs persists appearance preferences and custom scenario videos.
//
// Preferences live in a TOML file separate from the simulation config and
// never influence risk logic. Invalid stored values fall back to defaults.
package prefs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/klsim/internal/logging"
)

// Density is the layout density of the interface.
type Density string

// Supported densities.
const (
	DensityComfortable Density = "comfortable"
	DensityCompact     Density = "compact"
)

// ErrInvalidDensity is returned for densities other than comfortable and compact.
var ErrInvalidDensity = errors.New("invalid density")

// Valid reports whether d is a supported density.
func (d Density) Valid() bool {
	return d == DensityComfortable || d == DensityCompact
}

// Appearance holds display preferences.
type Appearance struct {
	ReducedMotion bool
	Density       Density
}

// DefaultAppearance returns the compiled-in appearance.
func DefaultAppearance() Appearance {
	return Appearance{Density: DensityComfortable}
}

type fileFormat struct {
	Appearance fileAppearance    `toml:"appearance"`
	Videos     map[string]string `toml:"videos"`
}

type fileAppearance struct {
	ReducedMotion *bool   `toml:"reduced-motion"`
	Density       *string `toml:"density"`
}

// Store is a file-backed preferences store.
type Store struct {
	mu         sync.Mutex
	path       string
	logger     *slog.Logger
	appearance Appearance
	videos     map[string]string
}

// Open loads preferences from path. A missing or unreadable file yields
// defaults.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("preferences path is empty")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Store{
		path:       path,
		logger:     logger,
		appearance: DefaultAppearance(),
		videos:     map[string]string{},
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to stat preferences: %w", err)
	}
	var f fileFormat
	if _, err := toml.DecodeFile(path, &f); err != nil {
		s.logger.Warn("preferences unreadable, using defaults", "path", path, "error", err)
		return s, nil
	}
	if f.Appearance.ReducedMotion != nil {
		s.appearance.ReducedMotion = *f.Appearance.ReducedMotion
	}
	if f.Appearance.Density != nil {
		if d := Density(*f.Appearance.Density); d.Valid() {
			s.appearance.Density = d
		} else {
			s.logger.Warn("invalid stored density", "value", *f.Appearance.Density)
		}
	}
	for id, link := range f.Videos {
		if _, ok := EmbedURL(link); ok {
			s.videos[id] = link
		}
	}
	return s, nil
}

// Appearance returns the current appearance.
func (s *Store) Appearance() Appearance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appearance
}

// SetDensity changes the layout density.
func (s *Store) SetDensity(d Density) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDensity, d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appearance.Density = d
	return s.saveLocked()
}

// SetReducedMotion changes the reduced-motion flag.
func (s *Store) SetReducedMotion(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appearance.ReducedMotion = on
	return s.saveLocked()
}

// ToggleReducedMotion flips the reduced-motion flag.
func (s *Store) ToggleReducedMotion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appearance.ReducedMotion = !s.appearance.ReducedMotion
	return s.saveLocked()
}

// SaveCustomVideo stores a custom video link for a scenario. It reports
// false when the link is not a recognised YouTube link or saving fails.
func (s *Store) SaveCustomVideo(scenarioID, urlOrID string) bool {
	if _, ok := EmbedURL(urlOrID); !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.videos[scenarioID]
	s.videos[scenarioID] = urlOrID
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("failed to save custom video", "scenario", scenarioID, "error", err)
		if had {
			s.videos[scenarioID] = prev
		} else {
			delete(s.videos, scenarioID)
		}
		return false
	}
	return true
}

// ClearCustomVideo removes the custom video link for a scenario.
func (s *Store) ClearCustomVideo(scenarioID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[scenarioID]; !ok {
		return
	}
	delete(s.videos, scenarioID)
	if err := s.saveLocked(); err != nil {
		s.logger.Warn("failed to clear custom video", "scenario", scenarioID, "error", err)
	}
}

// CustomVideo returns the custom video link for a scenario.
func (s *Store) CustomVideo(scenarioID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[scenarioID]
	return v, ok
}

// VideoFor returns the embed URL for a scenario, preferring a custom link.
func (s *Store) VideoFor(scenarioID string) (string, bool) {
	if link, ok := s.CustomVideo(scenarioID); ok {
		return EmbedURL(link)
	}
	if link, ok := ScenarioVideo(scenarioID); ok {
		return EmbedURL(link)
	}
	return "", false
}

func (s *Store) saveLocked() error {
	density := string(s.appearance.Density)
	reduced := s.appearance.ReducedMotion
	f := fileFormat{
		Appearance: fileAppearance{ReducedMotion: &reduced, Density: &density},
		Videos:     s.videos,
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*")
	if err != nil {
		return fmt.Errorf("failed to create preferences file: %w", err)
	}
	if err := toml.NewEncoder(tmp).Encode(f); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
