// Package credentials stores channel and provider secrets outside the
// config file. The OS keyring is preferred; a 0600 JSON file under the
// state directory is the fallback on headless hosts.
package credentials

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	keyring "github.com/zalando/go-keyring"
)

const keyringService = "openclaw"

// ErrNotFound is returned when no secret is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store persists named secrets.
type Store interface {
	Save(key, secret string) error
	Load(key string) (string, error)
	Delete(key string) error
}

// KeyringStore backs the store with the operating system keyring.
type KeyringStore struct{}

// NewKeyringStore returns a keyring-backed store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Save(key, secret string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("credential key is required")
	}
	if err := keyring.Set(keyringService, key, secret); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

func (s *KeyringStore) Load(key string) (string, error) {
	secret, err := keyring.Get(keyringService, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("keyring get %s: %w", key, err)
	}
	return secret, nil
}

func (s *KeyringStore) Delete(key string) error {
	if err := keyring.Delete(keyringService, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}

// available probes the keyring with a throwaway entry.
func (s *KeyringStore) available() bool {
	const probe = "availability-probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probe)
	return true
}

// Open returns the keyring store when the OS keyring works, otherwise a
// file store at path.
func Open(path string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ks := NewKeyringStore()
	if ks.available() {
		return ks, nil
	}
	logger.Warn("os keyring unavailable, falling back to file store", "path", path)
	return NewFileStore(path)
}
