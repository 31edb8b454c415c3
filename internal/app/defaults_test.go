package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/etc/dupview.toml")
		t.Setenv(EnvHome, "/var/lib/dupview")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		want := map[string]string{
			"config_path": "/etc/dupview.toml",
			"base_dir":    "/var/lib/dupview",
			"log_dir":     "/var/lib/dupview/log",
		}
		for k, v := range want {
			if defaults[k] != v {
				t.Errorf("%s = %q, want %q", k, defaults[k], v)
			}
		}
	})

	t.Run("home directory fallback", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		home, _ := os.UserHomeDir()
		base := filepath.Join(home, ".local", "share", "dupview")
		want := map[string]string{
			"config_path": filepath.Join(home, ".config", "dupview.toml"),
			"base_dir":    base,
			"log_dir":     filepath.Join(base, "log"),
		}
		for k, v := range want {
			if defaults[k] != v {
				t.Errorf("%s = %q, want %q", k, defaults[k], v)
			}
		}
	})
}
