// Package settings persists the user's sync settings. Unlike sync I/O
// failures, persistence failures here surface to the caller: a settings
// change is user-initiated and must not be silently dropped.
package settings

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/edusync/assignsync/internal/models"
)

// Store loads and saves sync settings.
type Store interface {
	Load() (models.SyncSettings, error)
	Save(settings models.SyncSettings) error
}

// FileStore persists settings as a YAML file.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed settings store.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Load reads the persisted settings. A missing file yields the defaults.
func (s *FileStore) Load() (models.SyncSettings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("No settings file, using defaults", "path", s.path)
			return models.DefaultSyncSettings(), nil
		}
		return models.SyncSettings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings models.SyncSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return models.SyncSettings{}, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return settings, nil
}

// Save writes the settings, replacing the file atomically.
func (s *FileStore) Save(settings models.SyncSettings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	s.logger.Debug("Settings saved", "path", s.path)
	return nil
}
