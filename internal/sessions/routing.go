// Package sessions derives session keys from message routes and persists
// session records in a JSON file store.
package sessions

import (
	"strings"

	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/pkg/models"
)

// KeyResolver derives session keys according to the routing config.
type KeyResolver struct {
	defaultKey     string
	includeChannel bool
	includeAccount bool
	includePeer    bool
}

// NewKeyResolver builds a resolver from the routing config.
func NewKeyResolver(cfg config.RoutingConfig) *KeyResolver {
	defaultKey := strings.TrimSpace(cfg.DefaultSessionKey)
	if defaultKey == "" {
		defaultKey = config.DefaultSessionKey
	}
	return &KeyResolver{
		defaultKey:     defaultKey,
		includeChannel: cfg.ChannelIncluded(),
		includeAccount: cfg.IncludeAccountID,
		includePeer:    cfg.PeerIncluded(),
	}
}

// DefaultKey returns the fallback session key.
func (r *KeyResolver) DefaultKey() string {
	return r.defaultKey
}

// KeyFor derives the session key for a route. An explicit key always wins;
// otherwise the enabled route parts are sanitized and joined with ":".
// When every selected part is empty the default key is returned.
func (r *KeyResolver) KeyFor(route models.Route, explicitKey string) string {
	if explicit := strings.TrimSpace(explicitKey); explicit != "" {
		return explicit
	}

	var parts []string
	if r.includeChannel {
		if p := sanitizeKeyPart(string(route.Channel)); p != "" {
			parts = append(parts, p)
		}
	}
	if r.includeAccount {
		if p := sanitizeKeyPart(route.AccountID); p != "" {
			parts = append(parts, p)
		}
	}
	if r.includePeer {
		if p := sanitizeKeyPart(route.PeerID); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return r.defaultKey
	}
	return strings.Join(parts, ":")
}

// sanitizeKeyPart trims whitespace and replaces the characters that
// would collide with the key separator or filesystem paths.
func sanitizeKeyPart(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", ":", "_")
	return replacer.Replace(trimmed)
}
