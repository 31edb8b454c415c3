package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the dupview configuration file.
type Config struct {
	InstanceID string           `toml:"instance_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Backends   []BackendConfig  `toml:"backends"`
	Decode     DecodeConfig     `toml:"decode"`
	Passphrase PassphraseConfig `toml:"passphrase"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Scan       ScanConfig       `toml:"scan"`
	Log        LogConfig        `toml:"log"`
}

// BackendConfig describes one duplicity target location.
// Type selects which of the remaining fields apply.
type BackendConfig struct {
	Type string `toml:"type"` // "filesystem", "memory" or "s3"
	Name string `toml:"name"`

	// filesystem
	FSRoot string   `toml:"fs_root,omitempty"`
	Ignore []string `toml:"ignore,omitempty"`

	// s3
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"` // detected from the bucket when empty
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// DecodeConfig selects how compressed and encrypted archive files are read.
type DecodeConfig struct {
	Type              string `toml:"type"` // "gpg", "test" or "none"
	SecretKeyringPath string `toml:"secret_keyring_path,omitempty"`
}

// PassphraseConfig selects where the archive passphrase comes from.
type PassphraseConfig struct {
	Type         string `toml:"type"`                    // "env", "age" or "prompt"
	EnvVar       string `toml:"env_var,omitempty"`       // env
	IdentityPath string `toml:"identity_path,omitempty"` // age
	SecretPath   string `toml:"secret_path,omitempty"`   // age
}

// CatalogConfig selects where scan history is kept.
type CatalogConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // sqlite
}

// ScanConfig tunes backend scans.
type ScanConfig struct {
	Parallelism       int    `toml:"parallelism"`
	VerifyManifests   bool   `toml:"verify_manifests"`
	ManifestCacheSize int    `toml:"manifest_cache_size"`
	ManifestCacheTTL  string `toml:"manifest_cache_ttl,omitempty"` // time.ParseDuration syntax
}

// CacheTTL parses ManifestCacheTTL. An empty value means the default.
func (s ScanConfig) CacheTTL() (time.Duration, error) {
	if s.ManifestCacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.ManifestCacheTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid manifest_cache_ttl %q: %w", s.ManifestCacheTTL, err)
	}
	return d, nil
}

// LogConfig sets the minimum level written to the log.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn" or "error"
}

// NewConfig returns a Config with every section set to its default.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Decode:     DecodeConfig{Type: "gpg"},
		Passphrase: PassphraseConfig{
			Type:         "env",
			EnvVar:       "PASSPHRASE",
			IdentityPath: filepath.Join(baseDir, "keys", "dupview.key"),
			SecretPath:   filepath.Join(baseDir, "keys", "passphrase.age"),
		},
		Catalog: CatalogConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "catalog")},
		Scan: ScanConfig{
			Parallelism:       4,
			VerifyManifests:   true,
			ManifestCacheSize: 64,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Backend returns the backend called name, or the first one when name is
// empty.
func (c *Config) Backend(name string) (BackendConfig, error) {
	if len(c.Backends) == 0 {
		return BackendConfig{}, fmt.Errorf("no backends configured")
	}
	if name == "" {
		return c.Backends[0], nil
	}
	for _, b := range c.Backends {
		if b.Name == name {
			return b, nil
		}
	}
	return BackendConfig{}, fmt.Errorf("no backend named %q", name)
}

// Manager reads and writes Config values as TOML.
type Manager struct{}

// Read decodes a Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile reads the Config stored at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
