package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables overriding the default locations.
const (
	EnvConfigPath = "DUPVIEW_CONFIG_PATH" // default ~/.config/dupview.toml
	EnvHome       = "DUPVIEW_HOME"        // default ~/.local/share/dupview
)

// GetDefaults returns the default config path, base directory and log
// directory, honoring the environment overrides.
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome(EnvConfigPath, ".config", "dupview.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome(EnvHome, ".local", "share", "dupview")
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func envOrHome(env string, rel ...string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{home}, rel...)...), nil
}
