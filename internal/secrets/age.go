package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// AgeKeyring keeps the archive passphrase on disk encrypted to a local
// X25519 identity, so it does not have to be typed for every command.
type AgeKeyring struct {
	identityPath string
	secretPath   string
}

// NewAgeKeyring uses the identity at identityPath and the encrypted
// passphrase at secretPath.
func NewAgeKeyring(identityPath, secretPath string) *AgeKeyring {
	return &AgeKeyring{identityPath: identityPath, secretPath: secretPath}
}

// Store encrypts passphrase to the keyring identity, generating the
// identity on first use.
func (k *AgeKeyring) Store(passphrase string) error {
	identity, err := k.loadIdentity()
	if errors.Is(err, fs.ErrNotExist) {
		identity, err = k.generateIdentity()
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(k.secretPath), 0700); err != nil {
		return fmt.Errorf("creating secret directory: %w", err)
	}
	f, err := os.OpenFile(k.secretPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating secret file: %w", err)
	}
	defer f.Close()

	w, err := age.Encrypt(f, identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, passphrase); err != nil {
		return fmt.Errorf("writing encrypted passphrase: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted passphrase: %w", err)
	}
	return nil
}

// Passphrase decrypts the stored passphrase.
func (k *AgeKeyring) Passphrase() (string, error) {
	identity, err := k.loadIdentity()
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: keyring not initialized", ErrNoPassphrase)
	}
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(k.secretPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no passphrase stored", ErrNoPassphrase)
	}
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return "", fmt.Errorf("decrypting passphrase: %w", err)
	}
	p, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted passphrase: %w", err)
	}
	return string(p), nil
}

// IsConfigured reports whether both keyring files exist.
func (k *AgeKeyring) IsConfigured() bool {
	if _, err := os.Stat(k.identityPath); err != nil {
		return false
	}
	if _, err := os.Stat(k.secretPath); err != nil {
		return false
	}
	return true
}

func (k *AgeKeyring) loadIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(k.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity in %s", k.identityPath)
}

func (k *AgeKeyring) generateIdentity() (*age.X25519Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.identityPath), 0700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	if err := os.WriteFile(k.identityPath, []byte(identity.String()+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}
	return identity, nil
}
