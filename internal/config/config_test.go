package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/openclaw/openclaw/pkg/models"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Agents.DefaultAgentID != "main" {
		t.Errorf("defaultAgentID = %q, want main", cfg.Agents.DefaultAgentID)
	}
	if cfg.Routing.DefaultSessionKey != "main" {
		t.Errorf("defaultSessionKey = %q, want main", cfg.Routing.DefaultSessionKey)
	}
	if cfg.Models.DefaultProviderID != "echo" {
		t.Errorf("defaultProviderID = %q, want echo", cfg.Models.DefaultProviderID)
	}
	if cfg.Memory.MaxTurnsPerSession != 200 {
		t.Errorf("maxTurnsPerSession = %d, want 200", cfg.Memory.MaxTurnsPerSession)
	}
	if cfg.Memory.ContextLimit != 12 {
		t.Errorf("contextLimit = %d, want 12", cfg.Memory.ContextLimit)
	}
	if cfg.AutoReply.TimeoutMs != 30_000 {
		t.Errorf("autoReply.timeoutMs = %d, want 30000", cfg.AutoReply.TimeoutMs)
	}
	if !cfg.Routing.ChannelIncluded() {
		t.Error("includeChannelID should default to true")
	}
	if !cfg.Routing.PeerIncluded() {
		t.Error("includePeerID should default to true")
	}
	if cfg.Channels.Discord.Enabled || cfg.Channels.Telegram.Enabled || cfg.Channels.WhatsAppCloud.Enabled {
		t.Error("channel subsections must default to disabled")
	}
}

func TestApplyDefaultsIdempotent(t *testing.T) {
	a := &Config{}
	a.ApplyDefaults()
	b := &Config{}
	b.ApplyDefaults()
	b.ApplyDefaults()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("defaults not idempotent:\n%+v\n%+v", a, b)
	}
}

func TestResolvedAgentIDSpecificity(t *testing.T) {
	agents := AgentsConfig{
		DefaultAgentID: "main",
		RouteAgentMap: map[string]string{
			"discord":             "discord-agent",
			"discord:acct":        "account-agent",
			"discord:acct:peer42": "peer-agent",
		},
	}

	tests := []struct {
		name  string
		route models.Route
		want  string
	}{
		{"most specific wins", models.Route{Channel: "discord", AccountID: "acct", PeerID: "peer42"}, "peer-agent"},
		{"account fallback", models.Route{Channel: "discord", AccountID: "acct", PeerID: "other"}, "account-agent"},
		{"channel fallback", models.Route{Channel: "discord", AccountID: "nope", PeerID: "x"}, "discord-agent"},
		{"default fallback", models.Route{Channel: "telegram", PeerID: "x"}, "main"},
		{"empty route", models.Route{}, "main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := agents.ResolvedAgentID(tt.route); got != tt.want {
				t.Errorf("ResolvedAgentID(%+v) = %q, want %q", tt.route, got, tt.want)
			}
		})
	}
}

func TestParseIgnoresUnknownFields(t *testing.T) {
	raw := `{
		// comment tolerated
		"agents": {"defaultAgentID": "ops", "futureField": 42},
		"unknownSection": {"x": 1},
	}`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Agents.DefaultAgentID != "ops" {
		t.Errorf("defaultAgentID = %q, want ops", cfg.Agents.DefaultAgentID)
	}
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("OPENCLAW_TEST_TOKEN", "tok-123")
	cfg, err := Parse([]byte(`{"channels": {"telegram": {"enabled": true, "botToken": "${OPENCLAW_TEST_TOKEN}"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Channels.Telegram.BotToken != "tok-123" {
		t.Errorf("botToken = %q, want tok-123", cfg.Channels.Telegram.BotToken)
	}
}

func TestParseThrottle(t *testing.T) {
	cfg, err := Parse([]byte(`{"channels": {"throttle": {"minIntervalMs": 1500, "dropIfOverflow": true}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Channels.Throttle.MinIntervalMs != 1500 {
		t.Errorf("minIntervalMs = %d, want 1500", cfg.Channels.Throttle.MinIntervalMs)
	}
	if !cfg.Channels.Throttle.DropIfOverflow {
		t.Error("dropIfOverflow not parsed")
	}
	if Default().Channels.Throttle.MinIntervalMs != 0 {
		t.Error("throttle must default to disabled")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	include := false
	peer := true
	cfg := Default()
	cfg.Agents.DefaultAgentID = "support"
	cfg.Routing.IncludeChannelID = &include
	cfg.Routing.IncludePeerID = &peer
	cfg.Channels.WebChat.Enabled = true

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Defaults applied twice must converge to the same config.
	loaded.ApplyDefaults()
	cfg.ApplyDefaults()
	if !reflect.DeepEqual(cfg, loaded) {
		t.Fatalf("roundtrip mismatch:\nsaved:  %+v\nloaded: %+v", cfg, loaded)
	}
}

func TestSavedConfigIsIndentedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := Save(Default(), path); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("saved config is not valid JSON: %v", err)
	}
	if !json.Valid(data) {
		t.Fatal("saved config is not valid JSON")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Agents.DefaultAgentID != "main" {
		t.Errorf("expected defaults, got %+v", cfg.Agents)
	}
}
