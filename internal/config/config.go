// Package config defines the typed engine configuration and its on-disk
// JSON representation. Decoding is forward-compatible: unknown fields are
// ignored and missing optional fields fall back to documented defaults.
package config

import (
	"sort"
	"strings"

	"github.com/openclaw/openclaw/pkg/models"
)

// Config is the root configuration structure.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Agents    AgentsConfig    `json:"agents"`
	Channels  ChannelsConfig  `json:"channels"`
	Routing   RoutingConfig   `json:"routing"`
	Models    ModelsConfig    `json:"models"`
	Skills    SkillsConfig    `json:"skills"`
	Memory    MemoryConfig    `json:"memory"`
	AutoReply AutoReplyConfig `json:"autoReply"`
	Logging   LoggingConfig   `json:"logging"`
}

// GatewayConfig describes the optional RPC gateway surface. The transport
// itself is pluggable; only the listen address and auth mode are owned here.
type GatewayConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	AuthMode string `json:"authMode"`
}

// AgentsConfig maps routes to agent IDs and anchors the workspace root.
type AgentsConfig struct {
	DefaultAgentID string            `json:"defaultAgentID"`
	WorkspaceRoot  string            `json:"workspaceRoot"`
	AgentIDs       []string          `json:"agentIDs,omitempty"`
	RouteAgentMap  map[string]string `json:"routeAgentMap,omitempty"`
}

// ResolvedAgentID returns the agent bound to a route, trying the most
// specific route key first: channel:accountID:peerID, then channel:accountID,
// then channel, then the default agent.
func (c *AgentsConfig) ResolvedAgentID(route models.Route) string {
	channel := strings.TrimSpace(string(route.Channel))
	account := strings.TrimSpace(route.AccountID)
	peer := strings.TrimSpace(route.PeerID)

	candidates := make([]string, 0, 3)
	if channel != "" && account != "" && peer != "" {
		candidates = append(candidates, channel+":"+account+":"+peer)
	}
	if channel != "" && account != "" {
		candidates = append(candidates, channel+":"+account)
	}
	if channel != "" {
		candidates = append(candidates, channel)
	}

	for _, key := range candidates {
		if agentID, ok := c.RouteAgentMap[key]; ok {
			if trimmed := strings.TrimSpace(agentID); trimmed != "" {
				return trimmed
			}
		}
	}
	return c.DefaultAgentID
}

// RoutingConfig controls session-key derivation.
type RoutingConfig struct {
	DefaultSessionKey string `json:"defaultSessionKey"`
	IncludeChannelID  *bool  `json:"includeChannelID,omitempty"`
	IncludeAccountID  bool   `json:"includeAccountID"`
	IncludePeerID     *bool  `json:"includePeerID,omitempty"`
}

// ChannelIncluded reports whether the channel ID participates in the
// session key. Defaults to true when unset.
func (c *RoutingConfig) ChannelIncluded() bool {
	if c.IncludeChannelID == nil {
		return true
	}
	return *c.IncludeChannelID
}

// PeerIncluded reports whether the peer ID participates in the session
// key. Defaults to true when unset, so each peer gets its own session.
func (c *RoutingConfig) PeerIncluded() bool {
	if c.IncludePeerID == nil {
		return true
	}
	return *c.IncludePeerID
}

// ChannelsConfig holds per-transport adapter settings. Every subsection
// defaults to disabled and is a no-op when disabled.
type ChannelsConfig struct {
	Throttle      ThrottleConfig      `json:"throttle"`
	Discord       DiscordConfig       `json:"discord"`
	Telegram      TelegramConfig      `json:"telegram"`
	WhatsAppCloud WhatsAppCloudConfig `json:"whatsappCloud"`
	WebChat       WebChatConfig       `json:"webchat"`
}

// ThrottleConfig rate-limits outbound sends per channel. A zero
// minIntervalMs disables the throttle.
type ThrottleConfig struct {
	MinIntervalMs  int  `json:"minIntervalMs,omitempty"`
	DropIfOverflow bool `json:"dropIfOverflow,omitempty"`
}

// DiscordConfig configures the Discord polling adapter.
type DiscordConfig struct {
	Enabled         bool     `json:"enabled"`
	BotToken        string   `json:"botToken,omitempty"`
	ChannelIDs      []string `json:"channelIDs,omitempty"`
	PollIntervalMs  int      `json:"pollIntervalMs,omitempty"`
	MentionOnly     *bool    `json:"mentionOnly,omitempty"`
	PresenceEnabled bool     `json:"presenceEnabled,omitempty"`
	TypingHeartbeat bool     `json:"typingHeartbeat,omitempty"`
}

// MentionOnlyEnabled defaults to true: group messages must mention the bot.
func (c *DiscordConfig) MentionOnlyEnabled() bool {
	if c.MentionOnly == nil {
		return true
	}
	return *c.MentionOnly
}

// TelegramConfig configures the Telegram long-poll adapter.
type TelegramConfig struct {
	Enabled         bool   `json:"enabled"`
	BotToken        string `json:"botToken,omitempty"`
	PollIntervalMs  int    `json:"pollIntervalMs,omitempty"`
	MentionOnly     *bool  `json:"mentionOnly,omitempty"`
	TypingHeartbeat bool   `json:"typingHeartbeat,omitempty"`
}

// MentionOnlyEnabled defaults to true: group messages must mention the bot.
func (c *TelegramConfig) MentionOnlyEnabled() bool {
	if c.MentionOnly == nil {
		return true
	}
	return *c.MentionOnly
}

// WhatsAppCloudConfig configures the WhatsApp Cloud API webhook adapter.
type WhatsAppCloudConfig struct {
	Enabled       bool   `json:"enabled"`
	AccessToken   string `json:"accessToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberID,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
}

// WebChatConfig configures the in-process web chat adapter.
type WebChatConfig struct {
	Enabled bool `json:"enabled"`
}

// ModelsConfig selects and configures model providers.
type ModelsConfig struct {
	DefaultProviderID string                 `json:"defaultProviderID"`
	SystemPrompt      string                 `json:"systemPrompt,omitempty"`
	OpenAI            OpenAIConfig           `json:"openAI"`
	OpenAICompatible  OpenAICompatibleConfig `json:"openAICompatible"`
	Anthropic         AnthropicConfig        `json:"anthropic"`
	Gemini            GeminiConfig           `json:"gemini"`
	Foundation        FoundationConfig       `json:"foundation"`
	Local             LocalModelConfig       `json:"local"`
}

// OpenAIConfig configures the hosted OpenAI provider.
type OpenAIConfig struct {
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`
}

// OpenAICompatibleConfig configures any OpenAI-compatible endpoint.
type OpenAICompatibleConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`
}

// FoundationConfig reserves a slot for a platform foundation-model provider.
type FoundationConfig struct {
	Enabled bool `json:"enabled"`
}

// LocalModelConfig configures the embedded local-runtime provider.
type LocalModelConfig struct {
	Enabled   bool   `json:"enabled"`
	ModelPath string `json:"modelPath,omitempty"`
	Runtime   string `json:"runtime,omitempty"`
}

// SkillsConfig configures skill discovery roots beyond the implicit ones.
type SkillsConfig struct {
	ExtraDirs        []string `json:"extraDirs,omitempty"`
	BundledDir       string   `json:"bundledDir,omitempty"`
	ManagedDir       string   `json:"managedDir,omitempty"`
	DefaultTimeoutMs int      `json:"defaultTimeoutMs,omitempty"`
	Watch            bool     `json:"watch,omitempty"`
}

// MemoryConfig bounds the conversation-memory store.
type MemoryConfig struct {
	MaxTurnsPerSession int `json:"maxTurnsPerSession,omitempty"`
	ContextLimit       int `json:"contextLimit,omitempty"`
}

// AutoReplyConfig bounds the end-to-end reply pipeline.
type AutoReplyConfig struct {
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text, json
}

// Default values applied by ApplyDefaults.
const (
	DefaultAgentID            = "main"
	DefaultSessionKey         = "main"
	DefaultProviderID         = "echo"
	DefaultMemoryMaxTurns     = 200
	DefaultMemoryContextLimit = 12
	DefaultAutoReplyTimeoutMs = 30_000
	DefaultPollIntervalMs     = 2_000
	DefaultSkillTimeoutMs     = 30_000
	DefaultGatewayHost        = "127.0.0.1"
	DefaultGatewayPort        = 18789
)

// ApplyDefaults fills zero-valued fields with their documented defaults.
// Applying twice is idempotent.
func (c *Config) ApplyDefaults() {
	if c.Agents.DefaultAgentID == "" {
		c.Agents.DefaultAgentID = DefaultAgentID
	}
	if c.Routing.DefaultSessionKey == "" {
		c.Routing.DefaultSessionKey = DefaultSessionKey
	}
	if c.Models.DefaultProviderID == "" {
		c.Models.DefaultProviderID = DefaultProviderID
	}
	if c.Memory.MaxTurnsPerSession <= 0 {
		c.Memory.MaxTurnsPerSession = DefaultMemoryMaxTurns
	}
	if c.Memory.ContextLimit <= 0 {
		c.Memory.ContextLimit = DefaultMemoryContextLimit
	}
	if c.AutoReply.TimeoutMs <= 0 {
		c.AutoReply.TimeoutMs = DefaultAutoReplyTimeoutMs
	}
	if c.Skills.DefaultTimeoutMs <= 0 {
		c.Skills.DefaultTimeoutMs = DefaultSkillTimeoutMs
	}
	if c.Channels.Discord.PollIntervalMs <= 0 {
		c.Channels.Discord.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.Channels.Telegram.PollIntervalMs <= 0 {
		c.Channels.Telegram.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// SortedAgentIDs returns the configured agent IDs plus the default,
// de-duplicated and sorted.
func (c *AgentsConfig) SortedAgentIDs() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(c.AgentIDs)+1)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(c.DefaultAgentID)
	for _, id := range c.AgentIDs {
		add(id)
	}
	sort.Strings(out)
	return out
}
