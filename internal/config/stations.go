package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/nycdash/nyc-dashboard/internal/models"
)

// StationStore persists the pinned station list to a JSON file so edits made
// in the UI survive restarts. A missing or unreadable file yields the
// configured defaults.
type StationStore struct {
	path     string
	defaults []models.StationConfig
	validate *validator.Validate

	mu sync.Mutex
}

// NewStationStore creates a StationStore writing to path. defaults are served
// until the first successful Replace.
func NewStationStore(path string, defaults []models.StationConfig) *StationStore {
	return &StationStore{
		path:     path,
		defaults: defaults,
		validate: validator.New(),
	}
}

// List returns the pinned stations. The persisted file wins over defaults;
// a corrupt file falls back to defaults rather than failing the page.
func (s *StationStore) List() []models.StationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.copyDefaults()
	}
	var stations []models.StationConfig
	if err := json.Unmarshal(data, &stations); err != nil || len(stations) == 0 {
		return s.copyDefaults()
	}
	return stations
}

// Replace validates and persists a new station list atomically.
func (s *StationStore) Replace(stations []models.StationConfig) error {
	if len(stations) == 0 {
		return fmt.Errorf("station list must not be empty")
	}
	for i, st := range stations {
		if err := s.validate.Struct(st); err != nil {
			return fmt.Errorf("station %d invalid: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(stations, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stations: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create station dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "stations-*.json")
	if err != nil {
		return fmt.Errorf("create temp station file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write stations: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close station file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace station file: %w", err)
	}
	return nil
}

func (s *StationStore) copyDefaults() []models.StationConfig {
	out := make([]models.StationConfig, len(s.defaults))
	copy(out, s.defaults)
	return out
}
