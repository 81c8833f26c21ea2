// ABOUTME: Configuration CLI commands
// ABOUTME: Charm server host and user settings management
package cli

import (
	"flag"
	"fmt"
	"time"

	"github.com/harperreed/mural/backend"
	"github.com/harperreed/mural/board"
)

// ConfigShowCommand prints the current backend config and settings.
func ConfigShowCommand(args []string) error {
	cfg, err := backend.LoadCharmConfig()
	if err != nil {
		return fmt.Errorf("failed to load charm config: %w", err)
	}

	settings, err := board.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	fmt.Printf("Charm host: %s\n", cfg.Host)
	fmt.Printf("Poll interval: %s\n", cfg.PollInterval)
	fmt.Printf("Auto-sync: %t\n", cfg.AutoSync)
	fmt.Printf("Autosave interval: %s\n", settings.AutosaveInterval)
	if settings.ImageModel != "" {
		fmt.Printf("Image model: %s\n", settings.ImageModel)
	}
	if settings.EditModel != "" {
		fmt.Printf("Edit model: %s\n", settings.EditModel)
	}
	return nil
}

// ConfigSetHostCommand changes the charm server host.
func ConfigSetHostCommand(args []string) error {
	fs := flag.NewFlagSet("set-host", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("host is required")
	}

	cfg, err := backend.LoadCharmConfig()
	if err != nil {
		return fmt.Errorf("failed to load charm config: %w", err)
	}

	if err := cfg.SetHost(fs.Arg(0)); err != nil {
		return fmt.Errorf("failed to save charm config: %w", err)
	}

	fmt.Printf("✓ Charm host set to %s\n", cfg.Host)
	return nil
}

// ConfigSetSettingsCommand updates user settings.
func ConfigSetSettingsCommand(args []string) error {
	fs := flag.NewFlagSet("set-settings", flag.ExitOnError)
	imageModel := fs.String("image-model", "", "Preferred image generation model")
	editModel := fs.String("edit-model", "", "Preferred image edit model")
	autosave := fs.Duration("autosave-interval", 0, "Autosave interval (e.g. 5s)")
	_ = fs.Parse(args)

	settings, err := board.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if *imageModel != "" {
		settings.ImageModel = *imageModel
	}
	if *editModel != "" {
		settings.EditModel = *editModel
	}
	if *autosave > 0 {
		if *autosave < time.Second {
			return fmt.Errorf("autosave interval must be at least 1s")
		}
		settings.AutosaveInterval = *autosave
	}

	if err := settings.Save(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	fmt.Println("✓ Settings saved")
	return nil
}
