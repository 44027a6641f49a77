package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/openclaw/pkg/models"
)

// Store persists session records in a single JSON file. All mutation is
// serialized behind a mutex and flushed with an atomic rename.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]models.SessionRecord
	now     func() time.Time
}

// NewStore opens the session store at path, loading any existing file.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session store path is required")
	}
	s := &Store{
		path:    path,
		records: map[string]models.SessionRecord{},
		now:     time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read sessions: %w", err)
	}
	// The file is a bare map keyed by session key.
	records := map[string]models.SessionRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse sessions: %w", err)
	}
	for key, rec := range records {
		rec.Key = key
		s.records[key] = rec
	}
	return nil
}

// ResolveOrCreate returns the record for key, creating it bound to
// agentID when absent. An existing record is re-bound when agentID
// differs; its conversation state is untouched either way. The record's
// updatedAtMs never moves backwards.
func (s *Store) ResolveOrCreate(key, agentID string, lastRoute *models.Route) (models.SessionRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.SessionRecord{}, fmt.Errorf("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.now().UnixMilli()
	rec, ok := s.records[key]
	if !ok {
		rec = models.SessionRecord{Key: key}
	}
	rec.AgentID = agentID
	if nowMs > rec.UpdatedAtMs {
		rec.UpdatedAtMs = nowMs
	}
	if lastRoute != nil {
		routeCopy := *lastRoute
		rec.LastRoute = &routeCopy
	}
	s.records[key] = rec

	if err := s.flushLocked(); err != nil {
		return models.SessionRecord{}, err
	}
	return snapshotRecord(rec), nil
}

// RecordForKey returns a value copy of the record for key.
func (s *Store) RecordForKey(key string) (models.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return models.SessionRecord{}, false
	}
	return snapshotRecord(rec), true
}

// Keys returns all session keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Delete removes a session record, reporting whether it existed.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return false, nil
	}
	delete(s.records, key)
	if err := s.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func snapshotRecord(rec models.SessionRecord) models.SessionRecord {
	out := rec
	if rec.LastRoute != nil {
		routeCopy := *rec.LastRoute
		out.LastRoute = &routeCopy
	}
	return out
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("create temp sessions: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close sessions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename sessions: %w", err)
	}
	return nil
}
