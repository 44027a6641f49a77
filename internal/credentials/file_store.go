package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps secrets in a single 0600 JSON file. Writes are atomic.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileStorePayload struct {
	Version int               `json:"version"`
	Secrets map[string]string `json:"secrets"`
}

// NewFileStore opens (or prepares to create) a file store at path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("credential file path is required")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(key, secret string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("credential key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.read()
	if err != nil {
		return err
	}
	payload.Secrets[key] = secret
	return s.write(payload)
}

func (s *FileStore) Load(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.read()
	if err != nil {
		return "", err
	}
	secret, ok := payload.Secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := payload.Secrets[key]; !ok {
		return ErrNotFound
	}
	delete(payload.Secrets, key)
	return s.write(payload)
}

func (s *FileStore) read() (*fileStorePayload, error) {
	payload := &fileStorePayload{Version: 1, Secrets: map[string]string{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return payload, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if payload.Secrets == nil {
		payload.Secrets = map[string]string{}
	}
	return payload, nil
}

func (s *FileStore) write(payload *fileStorePayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename credentials: %w", err)
	}
	return nil
}
