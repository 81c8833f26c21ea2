// ABOUTME: User-scoped settings persisted locally, never replicated
// ABOUTME: Model choices and autosave interval stored as JSON under XDG data
package board

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const settingsFileName = "settings.json"

// Settings are per-user preferences. They are persisted on this machine
// only; peers on the same board never see them.
type Settings struct {
	// ImageModel is the preferred generation model.
	ImageModel string `json:"image_model,omitempty"`

	// EditModel is the preferred image-edit model.
	EditModel string `json:"edit_model,omitempty"`

	// AutosaveInterval overrides the default save cadence.
	AutosaveInterval time.Duration `json:"autosave_interval,omitempty"`
}

// DefaultSettings returns the baseline preferences.
func DefaultSettings() *Settings {
	return &Settings{
		AutosaveInterval: 5 * time.Second,
	}
}

func settingsPath() (string, error) {
	dataDir := filepath.Join(xdg.DataHome, "mural")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, settingsFileName), nil
}

// LoadSettings reads settings from disk, falling back to defaults.
func LoadSettings() (*Settings, error) {
	path, err := settingsPath()
	if err != nil {
		return DefaultSettings(), nil //nolint:nilerr // Intentionally returning defaults on path error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), nil //nolint:nilerr // Intentionally returning defaults on parse error
	}
	if s.AutosaveInterval == 0 {
		s.AutosaveInterval = 5 * time.Second
	}
	return &s, nil
}

// Save persists the settings to disk.
func (s *Settings) Save() error {
	path, err := settingsPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
