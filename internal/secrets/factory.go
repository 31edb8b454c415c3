package secrets

import (
	"fmt"
	"os"

	"dupview/internal/config"
)

// NewSourceFromConfig creates the passphrase Source described by cfg.
func NewSourceFromConfig(cfg config.PassphraseConfig) (Source, error) {
	switch cfg.Type {
	case "env", "":
		v := cfg.EnvVar
		if v == "" {
			v = "PASSPHRASE"
		}
		return EnvSource{Var: v}, nil
	case "age":
		if cfg.IdentityPath == "" || cfg.SecretPath == "" {
			return nil, fmt.Errorf("age passphrase source requires identity_path and secret_path")
		}
		return NewAgeKeyring(cfg.IdentityPath, cfg.SecretPath), nil
	case "prompt":
		return NewPromptSource(os.Stdin, os.Stderr, "GnuPG passphrase: "), nil
	default:
		return nil, fmt.Errorf("unknown passphrase type: %q", cfg.Type)
	}
}
