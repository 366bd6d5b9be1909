package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "igstories"
	keyringUser    = "session-passphrase"

	// EnvPassphrase overrides every other passphrase source
	EnvPassphrase = "IGSTORIES_PASSPHRASE"

	passphraseFile = ".passphrase"
)

// PassphraseSource supplies the secret the session artifact is encrypted with
type PassphraseSource interface {
	Passphrase() (string, error)
}

// StaticPassphrase is a fixed passphrase
type StaticPassphrase string

// Passphrase returns the fixed value
func (p StaticPassphrase) Passphrase() (string, error) {
	if p == "" {
		return "", errors.New("empty passphrase")
	}
	return string(p), nil
}

// KeyringPassphrase keeps a generated passphrase in the OS keychain. When no
// keychain is available it falls back to a 0600 file in dir.
type KeyringPassphrase struct {
	dir string
}

// NewKeyringPassphrase creates a keychain-backed passphrase source
func NewKeyringPassphrase(dir string) *KeyringPassphrase {
	return &KeyringPassphrase{dir: dir}
}

// Passphrase returns the environment override, the keychain entry, or the
// file fallback, generating and persisting a new secret on first use
func (k *KeyringPassphrase) Passphrase() (string, error) {
	if pass := os.Getenv(EnvPassphrase); pass != "" {
		return pass, nil
	}

	pass, err := keyring.Get(keyringService, keyringUser)
	if err == nil && pass != "" {
		return pass, nil
	}
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		pass, genErr := generatePassphrase()
		if genErr != nil {
			return "", genErr
		}
		if setErr := keyring.Set(keyringService, keyringUser, pass); setErr == nil {
			return pass, nil
		}
	}

	return k.fromFile()
}

// Forget removes the keychain entry
func (k *KeyringPassphrase) Forget() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// fromFile reads or creates the passphrase file
func (k *KeyringPassphrase) fromFile() (string, error) {
	if err := os.MkdirAll(k.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	path := filepath.Join(k.dir, passphraseFile)

	if content, err := os.ReadFile(path); err == nil {
		if pass := strings.TrimSpace(string(content)); pass != "" {
			return pass, nil
		}
	}

	pass, err := generatePassphrase()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(pass), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

// generatePassphrase generates a secure random passphrase
func generatePassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
