package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	artifactName = "session.enc"
	fileVersion  = 1
)

// Store keeps one encrypted session artifact on disk
type Store struct {
	path       string
	passphrase PassphraseSource
	mu         sync.RWMutex
}

// envelope is the on-disk layout of the artifact
type envelope struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewStore creates a store rooted at dir. An empty dir selects DefaultDir.
// A nil passphrase source selects the keychain-backed one.
func NewStore(dir string, pass PassphraseSource) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if pass == nil {
		pass = NewKeyringPassphrase(dir)
	}
	return &Store{
		path:       filepath.Join(dir, artifactName),
		passphrase: pass,
	}, nil
}

// Path returns the artifact location
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether an artifact is present without decrypting it
func (s *Store) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Save encrypts and writes the session, replacing any previous one
func (s *Store) Save(sess *Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pass, err := s.passphrase.Passphrase()
	if err != nil {
		return fmt.Errorf("failed to get passphrase: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(pass), salt, iterations, keySize, sha256.New)

	plaintext, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	encrypted, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	content, err := json.MarshalIndent(envelope{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(encrypted),
		Version:   fileVersion,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tempFile, s.path)
}

// Load reads and decrypts the saved session
func (s *Store) Load() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	encrypted, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	pass, err := s.passphrase.Passphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	key := pbkdf2.Key([]byte(pass), salt, iterations, keySize, sha256.New)

	plaintext, err := decrypt(encrypted, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(plaintext, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &sess, nil
}

// Delete removes the artifact
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Materialize writes the decrypted cookie jar to a private temp file in dir
// (the OS temp dir when empty). The returned cleanup removes the file and is
// safe to call more than once.
func (s *Store) Materialize(dir string) (string, func(), error) {
	sess, err := s.Load()
	if err != nil {
		return "", func() {}, err
	}

	f, err := os.CreateTemp(dir, "igstories-cookies-*.txt")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create cookie file: %w", err)
	}
	path := f.Name()
	var once sync.Once
	cleanup := func() {
		once.Do(func() { _ = os.Remove(path) })
	}

	if err := f.Chmod(0600); err != nil && runtime.GOOS != "windows" {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to protect cookie file: %w", err)
	}
	if _, err := f.Write(sess.CookieJar(time.Now())); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write cookie file: %w", err)
	}
	return path, cleanup, nil
}

// DefaultDir returns the per-user directory the artifact lives in
func DefaultDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "igstories")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "igstories")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			dir = filepath.Join(xdgConfig, "igstories")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "igstories")
		}
	}
	return dir, nil
}

// encrypt encrypts data using AES-GCM
func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt decrypts data using AES-GCM
func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
