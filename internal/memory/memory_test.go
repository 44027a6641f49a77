package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/openclaw/pkg/models"
)

func newTestMemory(t *testing.T, maxTurns int) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.json")
	store, err := NewStore(path, maxTurns)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, path
}

func userMsg(text string) models.InboundMessage {
	return models.InboundMessage{Channel: models.ChannelWebChat, PeerID: "u1", Text: text}
}

func TestAppendAndRecentEntries(t *testing.T) {
	store, _ := newTestMemory(t, 0)

	if err := store.AppendUserTurn("k", userMsg("hello")); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := store.AppendAssistantTurn("k", models.ChannelWebChat, "hi there"); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	turns := store.RecentEntries("k", 0)
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[0].Text != "hello" {
		t.Errorf("first turn wrong: %+v", turns[0])
	}
	if turns[1].Role != models.RoleAssistant || turns[1].Text != "hi there" {
		t.Errorf("second turn wrong: %+v", turns[1])
	}
	if turns[0].TsMs == 0 {
		t.Error("timestamp not stamped")
	}
}

func TestBoundedEviction(t *testing.T) {
	store, _ := newTestMemory(t, 3)
	for i := 0; i < 5; i++ {
		if err := store.AppendUserTurn("k", userMsg(strings.Repeat("x", i+1))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	turns := store.RecentEntries("k", 0)
	if len(turns) != 3 {
		t.Fatalf("len = %d, want 3", len(turns))
	}
	if turns[0].Text != "xxx" {
		t.Errorf("oldest turns not evicted first: %+v", turns)
	}
}

func TestRecentEntriesLimit(t *testing.T) {
	store, _ := newTestMemory(t, 0)
	for _, text := range []string{"a", "b", "c"} {
		if err := store.AppendUserTurn("k", userMsg(text)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	turns := store.RecentEntries("k", 2)
	if len(turns) != 2 || turns[0].Text != "b" || turns[1].Text != "c" {
		t.Errorf("want two most recent oldest-first, got %+v", turns)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	store, _ := newTestMemory(t, 0)
	if err := store.AppendUserTurn("a", userMsg("for a")); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendUserTurn("b", userMsg("for b")); err != nil {
		t.Fatal(err)
	}
	if turns := store.RecentEntries("a", 0); len(turns) != 1 || turns[0].Text != "for a" {
		t.Errorf("session a polluted: %+v", turns)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	store, path := newTestMemory(t, 0)
	if err := store.AppendUserTurn("k", userMsg("persisted")); err != nil {
		t.Fatal(err)
	}
	reopened, err := NewStore(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	turns := reopened.RecentEntries("k", 0)
	if len(turns) != 1 || turns[0].Text != "persisted" {
		t.Errorf("history lost across reopen: %+v", turns)
	}
	if turns[0].SessionKey != "k" {
		t.Errorf("session key not restored: %+v", turns[0])
	}
}

func TestFileIsBareMapKeyedBySessionKey(t *testing.T) {
	store, path := newTestMemory(t, 0)
	if err := store.AppendUserTurn("webchat:u1", userMsg("hi")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := raw["webchat:u1"]; !ok {
		t.Errorf("session key not a top-level key: %v", raw)
	}
	for _, wrapper := range []string{"turns", "version"} {
		if _, ok := raw[wrapper]; ok {
			t.Errorf("unexpected %q wrapper field in store file", wrapper)
		}
	}
}

func TestClear(t *testing.T) {
	store, _ := newTestMemory(t, 0)
	if err := store.AppendUserTurn("k", userMsg("x")); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear("k"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if turns := store.RecentEntries("k", 0); len(turns) != 0 {
		t.Errorf("history survived clear: %+v", turns)
	}
}

func TestFormattedContext(t *testing.T) {
	store, _ := newTestMemory(t, 0)
	if err := store.AppendUserTurn("k", userMsg("what is up")); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendAssistantTurn("k", models.ChannelWebChat, "not much"); err != nil {
		t.Fatal(err)
	}

	ctx := store.FormattedContext("k", 0)
	if !strings.HasPrefix(ctx, "## Conversation Memory Context") {
		t.Errorf("missing header: %q", ctx)
	}
	if !strings.Contains(ctx, "[user] what is up") || !strings.Contains(ctx, "[assistant] not much") {
		t.Errorf("turn lines missing: %q", ctx)
	}
}

func TestFormattedContextEmptySession(t *testing.T) {
	store, _ := newTestMemory(t, 0)
	if ctx := store.FormattedContext("nope", 0); ctx != "" {
		t.Errorf("want empty context, got %q", ctx)
	}
}

func TestEscapeForPrompt(t *testing.T) {
	const zw = "\u200b"
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"```go\ncode\n```", "`" + zw + "`" + zw + "`go\ncode\n`" + zw + "`" + zw + "`"},
		{"## Heading", "# # Heading"},
		{"<|system|>", "<" + zw + "|system|" + zw + ">"},
		{"a ## b ## c", "a # # b # # c"},
	}
	for _, tt := range tests {
		if got := EscapeForPrompt(tt.in); got != tt.want {
			t.Errorf("EscapeForPrompt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
