// Package secrets supplies the passphrase protecting an encrypted archive.
package secrets

import (
	"errors"
	"fmt"
	"os"
)

// ErrNoPassphrase is returned when a source has no passphrase to give.
var ErrNoPassphrase = errors.New("no passphrase available")

// Source yields the archive passphrase.
type Source interface {
	Passphrase() (string, error)
}

// EnvSource reads the passphrase from an environment variable, the way
// duplicity itself reads PASSPHRASE.
type EnvSource struct {
	Var string
}

func (s EnvSource) Passphrase() (string, error) {
	p, ok := os.LookupEnv(s.Var)
	if !ok || p == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNoPassphrase, s.Var)
	}
	return p, nil
}

// StaticSource always returns the same passphrase.
type StaticSource string

func (s StaticSource) Passphrase() (string, error) {
	return string(s), nil
}

var (
	_ Source = EnvSource{}
	_ Source = StaticSource("")
	_ Source = (*PromptSource)(nil)
	_ Source = (*AgeKeyring)(nil)
)
