package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/internal/diagnostics"
)

// cleanConfig returns a config that passes every check.
func cleanConfig() *config.Config {
	cfg := config.Default()
	cfg.Gateway.AuthMode = "token"
	return cfg
}

func findingIDs(findings []Finding) []string {
	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		ids = append(ids, f.ID)
	}
	return ids
}

func hasFinding(findings []Finding, id string) bool {
	for _, f := range findings {
		if f.ID == id {
			return true
		}
	}
	return false
}

func TestCleanConfigHasNoFindings(t *testing.T) {
	findings := Run(Options{Config: cleanConfig()})
	if len(findings) != 0 {
		t.Fatalf("unexpected findings: %v", findingIDs(findings))
	}
}

func TestPlaintextSecretsInConfig(t *testing.T) {
	cfg := cleanConfig()
	cfg.Channels.Discord.BotToken = "abc123"
	cfg.Models.Anthropic.APIKey = "sk-ant-test"

	findings := auditConfig(cfg)
	if !hasFinding(findings, "secrets.config.plaintext") {
		t.Fatalf("missing secrets finding, got %v", findingIDs(findings))
	}
	for _, f := range findings {
		if f.ID != "secrets.config.plaintext" {
			continue
		}
		for _, key := range []string{"channels.discord.botToken", "models.anthropic.apiKey"} {
			if !strings.Contains(f.Detail, key) {
				t.Errorf("detail missing %q: %s", key, f.Detail)
			}
		}
	}
}

func TestSharedSessionRouting(t *testing.T) {
	cfg := cleanConfig()
	off := false
	cfg.Routing.IncludeChannelID = &off
	cfg.Routing.IncludeAccountID = false
	cfg.Routing.IncludePeerID = &off

	findings := auditConfig(cfg)
	if !hasFinding(findings, "routing.shared-session") {
		t.Fatalf("missing routing finding, got %v", findingIDs(findings))
	}
}

func TestSharedSessionNotFlaggedWhenPeerIncluded(t *testing.T) {
	cfg := cleanConfig()
	off := false
	cfg.Routing.IncludeChannelID = &off

	if hasFinding(auditConfig(cfg), "routing.shared-session") {
		t.Fatal("routing finding fired despite includePeerID defaulting on")
	}
}

func TestMentionOnlyDisabledOnEnabledAdapters(t *testing.T) {
	off := false

	cfg := cleanConfig()
	cfg.Channels.Discord.Enabled = true
	cfg.Channels.Discord.MentionOnly = &off
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.MentionOnly = &off

	findings := auditConfig(cfg)
	for _, id := range []string{
		"channels.discord.mention-only-disabled",
		"channels.telegram.mention-only-disabled",
	} {
		if !hasFinding(findings, id) {
			t.Errorf("missing %s, got %v", id, findingIDs(findings))
		}
	}

	// A disabled adapter never fires regardless of its mention flag.
	cfg = cleanConfig()
	cfg.Channels.Discord.Enabled = false
	cfg.Channels.Discord.MentionOnly = &off
	if len(auditConfig(cfg)) != 0 {
		t.Errorf("disabled adapter flagged: %v", findingIDs(auditConfig(cfg)))
	}
}

func TestGatewayAuthMode(t *testing.T) {
	tests := []struct {
		mode string
		want bool
	}{
		{"", true},
		{"none", true},
		{"NONE", true},
		{"token", false},
	}
	for _, tt := range tests {
		cfg := cleanConfig()
		cfg.Gateway.AuthMode = tt.mode
		got := hasFinding(auditConfig(cfg), "gateway.auth-mode-unsafe")
		if got != tt.want {
			t.Errorf("authMode %q: finding=%v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestLocalModelWithoutPath(t *testing.T) {
	cfg := cleanConfig()
	cfg.Models.Local.Enabled = true

	if !hasFinding(auditConfig(cfg), "models.local-without-path") {
		t.Fatal("missing local model finding")
	}

	cfg.Models.Local.ModelPath = "/models/llama.gguf"
	if hasFinding(auditConfig(cfg), "models.local-without-path") {
		t.Fatal("finding fired despite modelPath set")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	loose := filepath.Join(dir, "loose.json")
	if err := os.WriteFile(loose, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	world := filepath.Join(dir, "world.json")
	if err := os.WriteFile(world, []byte("{}"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(world, 0o666); err != nil {
		t.Fatal(err)
	}
	tight := filepath.Join(dir, "tight.json")
	if err := os.WriteFile(tight, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	findings := auditFilePermissions([]string{loose, world, tight, filepath.Join(dir, "missing.json")})
	if len(findings) != 2 {
		t.Fatalf("findings = %v, want 2", findingIDs(findings))
	}
	if findings[0].ID != "fs.permissions-loose" || findings[0].Severity != SeverityWarning {
		t.Errorf("loose file: %+v", findings[0])
	}
	if findings[1].ID != "fs.world-writable" || findings[1].Severity != SeverityError {
		t.Errorf("world-writable file: %+v", findings[1])
	}
}

func TestPlaintextSecretScan(t *testing.T) {
	dir := t.TempDir()

	secret := filepath.Join(dir, "env.sh")
	if err := os.WriteFile(secret, []byte("export API_KEY=abcd1234abcd1234abcd\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	clean := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(clean, []byte("rotate the api key monthly\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	findings := auditPlaintextSecrets([]string{secret, clean})
	if len(findings) != 1 {
		t.Fatalf("findings = %v, want 1", findingIDs(findings))
	}
	if findings[0].ID != "fs.plaintext-secret" || !strings.Contains(findings[0].Detail, "line 1") {
		t.Errorf("finding = %+v", findings[0])
	}
}

func TestRunRanksFindings(t *testing.T) {
	cfg := cleanConfig()
	cfg.Gateway.AuthMode = "none"
	cfg.Models.OpenAI.APIKey = "sk-test-key-value"
	off := false
	cfg.Routing.IncludeChannelID = &off
	cfg.Routing.IncludePeerID = &off

	findings := Run(Options{Config: cfg})
	if len(findings) != 3 {
		t.Fatalf("findings = %v, want 3", findingIDs(findings))
	}
	want := []string{"gateway.auth-mode-unsafe", "routing.shared-session", "secrets.config.plaintext"}
	for i, id := range want {
		if findings[i].ID != id {
			t.Errorf("findings[%d] = %s, want %s", i, findings[i].ID, id)
		}
	}
}

func TestRunEmitsAuditEvents(t *testing.T) {
	diag := diagnostics.NewPipeline(32)
	cfg := cleanConfig()
	cfg.Gateway.AuthMode = "none"

	Run(Options{Config: cfg, Diag: diag})

	events := diag.RecentEvents(0)
	var findingEvents, completed int
	for _, ev := range events {
		if ev.Subsystem != diagnostics.SubsystemSecurity {
			t.Errorf("event %s under %s, want security", ev.Name, ev.Subsystem)
		}
		switch ev.Name {
		case diagnostics.EventAuditFinding:
			findingEvents++
			if ev.Metadata["id"] != "gateway.auth-mode-unsafe" || ev.Metadata["severity"] != "error" {
				t.Errorf("finding metadata = %v", ev.Metadata)
			}
		case diagnostics.EventAuditCompleted:
			completed++
			if ev.Metadata["findings"] != "1" {
				t.Errorf("completed metadata = %v", ev.Metadata)
			}
		}
	}
	if findingEvents != 1 || completed != 1 {
		t.Fatalf("finding events = %d, completed = %d", findingEvents, completed)
	}
}

func TestHasErrors(t *testing.T) {
	if HasErrors([]Finding{{Severity: SeverityWarning}}) {
		t.Error("warning reported as error")
	}
	if !HasErrors([]Finding{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Error("error not detected")
	}
}
