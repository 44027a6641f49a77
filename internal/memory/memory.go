// Package memory keeps a bounded per-session conversation history and
// renders it as an escaped prompt context block.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/openclaw/pkg/models"
)

// DefaultMaxTurns bounds each session's history.
const DefaultMaxTurns = 200

// DefaultContextLimit is how many recent turns FormattedContext includes.
const DefaultContextLimit = 12

// Store holds conversation turns per session key, oldest first, and
// evicts from the front once a session exceeds maxTurns.
type Store struct {
	mu       sync.Mutex
	path     string
	maxTurns int
	turns    map[string][]models.ConversationTurn
	now      func() time.Time
}

// NewStore opens the memory store at path. Pass maxTurns <= 0 for the
// default bound.
func NewStore(path string, maxTurns int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("memory store path is required")
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	s := &Store{
		path:     path,
		maxTurns: maxTurns,
		turns:    map[string][]models.ConversationTurn{},
		now:      time.Now,
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
		return fmt.Errorf("read memory: %w", err)
	}
	// The file is a bare map keyed by session key.
	byKey := map[string][]models.ConversationTurn{}
	if err := json.Unmarshal(data, &byKey); err != nil {
		return fmt.Errorf("parse memory: %w", err)
	}
	for key, turns := range byKey {
		for i := range turns {
			turns[i].SessionKey = key
		}
		s.turns[key] = turns
	}
	return nil
}

// AppendUserTurn records a user message for the session.
func (s *Store) AppendUserTurn(sessionKey string, msg models.InboundMessage) error {
	return s.append(models.ConversationTurn{
		SessionKey: sessionKey,
		Role:       models.RoleUser,
		Channel:    msg.Channel,
		AccountID:  msg.AccountID,
		PeerID:     msg.PeerID,
		Text:       msg.Text,
	})
}

// AppendAssistantTurn records an assistant reply for the session.
func (s *Store) AppendAssistantTurn(sessionKey string, channel models.ChannelID, text string) error {
	return s.append(models.ConversationTurn{
		SessionKey: sessionKey,
		Role:       models.RoleAssistant,
		Channel:    channel,
		Text:       text,
	})
}

func (s *Store) append(turn models.ConversationTurn) error {
	key := strings.TrimSpace(turn.SessionKey)
	if key == "" {
		return fmt.Errorf("session key is required")
	}
	turn.SessionKey = key
	if turn.TsMs == 0 {
		turn.TsMs = s.now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.turns[key], turn)
	if over := len(turns) - s.maxTurns; over > 0 {
		turns = append(turns[:0:0], turns[over:]...)
	}
	s.turns[key] = turns
	return s.flushLocked()
}

// RecentEntries returns up to limit most-recent turns, oldest first.
// A non-positive limit returns all retained turns.
func (s *Store) RecentEntries(sessionKey string, limit int) []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.turns[sessionKey]
	n := len(turns)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ConversationTurn, limit)
	copy(out, turns[n-limit:])
	return out
}

// Clear drops the history for a session.
func (s *Store) Clear(sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns[sessionKey]; !ok {
		return nil
	}
	delete(s.turns, sessionKey)
	return s.flushLocked()
}

// FormattedContext renders the recent history as a prompt block, one
// "[role] text" line per turn with the text escaped. Returns "" when the
// session has no history.
func (s *Store) FormattedContext(sessionKey string, limit int) string {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	turns := s.RecentEntries(sessionKey, limit)
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Conversation Memory Context\n")
	for _, turn := range turns {
		b.WriteString("\n[")
		b.WriteString(string(turn.Role))
		b.WriteString("] ")
		b.WriteString(EscapeForPrompt(turn.Text))
	}
	return b.String()
}

// EscapeForPrompt defuses markup that could break out of the memory
// block when replayed into a prompt: fenced code markers, heading
// markers, and special token delimiters are split with zero-width
// spaces or padding.
func EscapeForPrompt(text string) string {
	const zw = "\u200b"
	replacer := strings.NewReplacer(
		"```", "`"+zw+"`"+zw+"`",
		"##", "# #",
		"<|", "<"+zw+"|",
		"|>", "|"+zw+">",
	)
	return replacer.Replace(text)
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.turns, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return fmt.Errorf("create temp memory: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close memory: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename memory: %w", err)
	}
	return nil
}
