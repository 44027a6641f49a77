package models

import (
	"time"
)

// ChannelID identifies a messaging transport.
type ChannelID string

const (
	ChannelDiscord  ChannelID = "discord"
	ChannelTelegram ChannelID = "telegram"
	ChannelWhatsApp ChannelID = "whatsapp"
	ChannelWebChat  ChannelID = "webchat"
)

// KnownChannels lists the built-in channel IDs.
var KnownChannels = []ChannelID{
	ChannelDiscord,
	ChannelTelegram,
	ChannelWhatsApp,
	ChannelWebChat,
}

// IsKnownChannel reports whether id is one of the built-in channels.
// Registered extensions may use other IDs as long as they do not collide.
func IsKnownChannel(id ChannelID) bool {
	for _, c := range KnownChannels {
		if c == id {
			return true
		}
	}
	return false
}

// Role indicates the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Route is the {channel, accountID, peerID} triple observed on an inbound
// message. AccountID and PeerID may be empty depending on the transport.
type Route struct {
	Channel   ChannelID `json:"channel"`
	AccountID string    `json:"accountID,omitempty"`
	PeerID    string    `json:"peerID,omitempty"`
}

// Attachment references a file or media item carried by an inbound message.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"` // image, audio, video, document
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// InboundMessage is the unified inbound format produced by channel adapters.
// It is immutable; its lifetime is one engine invocation.
type InboundMessage struct {
	Channel     ChannelID    `json:"channel"`
	AccountID   string       `json:"accountID,omitempty"`
	PeerID      string       `json:"peerID"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	MessageID   string       `json:"messageID,omitempty"` // platform-specific ID, used for reply threading
	ReceivedAt  time.Time    `json:"receivedAt"`
}

// RouteOf returns the routing triple for the message.
func (m *InboundMessage) RouteOf() Route {
	return Route{Channel: m.Channel, AccountID: m.AccountID, PeerID: m.PeerID}
}

// OutboundMessage is a reply to be delivered through the channel registry.
// It is immutable after emission.
type OutboundMessage struct {
	Channel   ChannelID `json:"channel"`
	AccountID string    `json:"accountID,omitempty"`
	PeerID    string    `json:"peerID"`
	Text      string    `json:"text"`
	ReplyToID string    `json:"replyToID,omitempty"`
}

// SessionRecord binds a session key to an agent and the last observed route.
// UpdatedAtMs is monotonically non-decreasing per key.
type SessionRecord struct {
	Key         string `json:"key"`
	AgentID     string `json:"agentID"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
	LastRoute   *Route `json:"lastRoute,omitempty"`
}

// ConversationTurn is one entry in the per-session transcript.
type ConversationTurn struct {
	SessionKey string    `json:"-"`
	Role       Role      `json:"role"`
	Channel    ChannelID `json:"channel"`
	AccountID  string    `json:"accountID,omitempty"`
	PeerID     string    `json:"peerID,omitempty"`
	Text       string    `json:"text"`
	TsMs       int64     `json:"tsMs"`
}
