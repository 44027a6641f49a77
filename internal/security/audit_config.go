package security

import (
	"fmt"
	"strings"

	"github.com/openclaw/openclaw/internal/config"
)

// auditConfig runs the pure-config checks.
func auditConfig(cfg *config.Config) []Finding {
	var findings []Finding

	if keys := plaintextSecretKeys(cfg); len(keys) > 0 {
		findings = append(findings, Finding{
			ID:          "secrets.config.plaintext",
			Severity:    SeverityWarning,
			Title:       "Secrets stored in plaintext config",
			Detail:      fmt.Sprintf("config carries secret values for: %s", strings.Join(keys, ", ")),
			Remediation: "move secrets into the credential store",
		})
	}

	if !cfg.Routing.ChannelIncluded() && !cfg.Routing.IncludeAccountID && !cfg.Routing.PeerIncluded() {
		findings = append(findings, Finding{
			ID:          "routing.shared-session",
			Severity:    SeverityWarning,
			Title:       "All conversations share one session",
			Detail:      "every routing inclusion flag is off, so every peer on every channel collapses into the default session key",
			Remediation: "enable at least routing.includePeerID",
		})
	}

	findings = append(findings, mentionOnlyFindings(cfg)...)

	if mode := strings.ToLower(strings.TrimSpace(cfg.Gateway.AuthMode)); mode == "" || mode == "none" {
		findings = append(findings, Finding{
			ID:          "gateway.auth-mode-unsafe",
			Severity:    SeverityError,
			Title:       "Gateway accepts unauthenticated callers",
			Detail:      fmt.Sprintf("gateway.authMode is %q", cfg.Gateway.AuthMode),
			Remediation: "set gateway.authMode to token",
		})
	}

	if cfg.Models.Local.Enabled && strings.TrimSpace(cfg.Models.Local.ModelPath) == "" {
		findings = append(findings, Finding{
			ID:          "models.local-without-path",
			Severity:    SeverityWarning,
			Title:       "Local model enabled without a model path",
			Detail:      "models.local.enabled is true but models.local.modelPath is empty; every local call will fail",
			Remediation: "set models.local.modelPath or disable the local provider",
		})
	}

	return findings
}

// plaintextSecretKeys returns the dotted config keys that hold a
// non-empty secret value.
func plaintextSecretKeys(cfg *config.Config) []string {
	secrets := []struct {
		key   string
		value string
	}{
		{"channels.discord.botToken", cfg.Channels.Discord.BotToken},
		{"channels.telegram.botToken", cfg.Channels.Telegram.BotToken},
		{"channels.whatsappCloud.accessToken", cfg.Channels.WhatsAppCloud.AccessToken},
		{"channels.whatsappCloud.verifyToken", cfg.Channels.WhatsAppCloud.VerifyToken},
		{"models.openAI.apiKey", cfg.Models.OpenAI.APIKey},
		{"models.openAICompatible.apiKey", cfg.Models.OpenAICompatible.APIKey},
		{"models.anthropic.apiKey", cfg.Models.Anthropic.APIKey},
		{"models.gemini.apiKey", cfg.Models.Gemini.APIKey},
	}
	var keys []string
	for _, s := range secrets {
		if strings.TrimSpace(s.value) != "" {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// mentionOnlyFindings flags enabled group-capable adapters that answer
// every message instead of only mentions.
func mentionOnlyFindings(cfg *config.Config) []Finding {
	var findings []Finding
	if cfg.Channels.Discord.Enabled && !cfg.Channels.Discord.MentionOnlyEnabled() {
		findings = append(findings, Finding{
			ID:          "channels.discord.mention-only-disabled",
			Severity:    SeverityWarning,
			Title:       "Discord adapter replies to every group message",
			Remediation: "remove channels.discord.mentionOnly or set it to true",
		})
	}
	if cfg.Channels.Telegram.Enabled && !cfg.Channels.Telegram.MentionOnlyEnabled() {
		findings = append(findings, Finding{
			ID:          "channels.telegram.mention-only-disabled",
			Severity:    SeverityWarning,
			Title:       "Telegram adapter replies to every group message",
			Remediation: "remove channels.telegram.mentionOnly or set it to true",
		})
	}
	return findings
}
