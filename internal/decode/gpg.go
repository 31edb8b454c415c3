package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"

	"dupview/internal/secrets"
)

// GPGDecoder reads files written by duplicity with gpg encryption,
// either symmetric or to a key in a secret keyring.
type GPGDecoder struct {
	source      secrets.Source
	keyringPath string

	once    sync.Once
	keyring openpgp.EntityList
	loadErr error
}

// NewGPGDecoder returns a decoder taking its passphrase from source.
// keyringPath may be empty when archives are symmetrically encrypted.
func NewGPGDecoder(source secrets.Source, keyringPath string) *GPGDecoder {
	return &GPGDecoder{source: source, keyringPath: keyringPath}
}

func (d *GPGDecoder) Decode(r io.Reader, compressed, encrypted bool) (io.ReadCloser, error) {
	if !encrypted {
		return NoneDecoder{}.Decode(r, compressed, false)
	}

	keyring, err := d.loadKeyring()
	if err != nil {
		return nil, err
	}

	md, err := openpgp.ReadMessage(r, keyring, d.prompt(), nil)
	if err != nil {
		return nil, decodeError("reading gpg message: %v", err)
	}
	// .gz.gpg files are gzip inside the gpg message.
	return NoneDecoder{}.Decode(&taggedReader{r: md.UnverifiedBody}, compressed, false)
}

// prompt answers the openpgp passphrase callback. openpgp calls it again
// after a wrong answer, so the second call gives up.
func (d *GPGDecoder) prompt() openpgp.PromptFunction {
	tried := false
	return func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		if tried {
			return nil, errors.New("passphrase rejected")
		}
		tried = true

		passphrase, err := d.source.Passphrase()
		if err != nil {
			return nil, err
		}
		if symmetric {
			return []byte(passphrase), nil
		}
		for _, k := range keys {
			if k.PrivateKey == nil || !k.PrivateKey.Encrypted {
				continue
			}
			if err := k.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
				return nil, fmt.Errorf("unlocking secret key: %w", err)
			}
		}
		return nil, nil
	}
}

func (d *GPGDecoder) loadKeyring() (openpgp.EntityList, error) {
	d.once.Do(func() {
		if d.keyringPath == "" {
			return
		}
		d.keyring, d.loadErr = readKeyring(d.keyringPath)
	})
	return d.keyring, d.loadErr
}

func readKeyring(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening secret keyring: %w", err)
	}
	defer f.Close()

	block, err := armor.Decode(f)
	if err == nil {
		keyring, err := openpgp.ReadKeyRing(block.Body)
		if err != nil {
			return nil, fmt.Errorf("reading armored secret keyring: %w", err)
		}
		return keyring, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding secret keyring: %w", err)
	}
	keyring, err := openpgp.ReadKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("reading secret keyring: %w", err)
	}
	return keyring, nil
}
