// Package discord implements a polling Discord adapter. It reads new
// messages from configured channels over the REST API, acknowledges
// them with a reaction, and sends replies back through the same API.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/pkg/models"
)

// ackEmoji is added to an inbound message before the reply is produced.
const ackEmoji = "\U0001F440" // eyes

// typingInterval is how often the typing indicator is refreshed while a
// reply is being generated. Discord's indicator expires after ~10s.
const typingInterval = 4 * time.Second

// restSession is the slice of the discordgo API the adapter uses.
// Narrowed to an interface so tests can script it.
type restSession interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emoji string, options ...discordgo.RequestOption) error
}

// Presence keeps an optional gateway connection alive so the bot shows
// as online while the poller runs. Stop is called on every exit path.
type Presence interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Adapter polls Discord channels for new messages.
type Adapter struct {
	cfg      config.DiscordConfig
	session  restSession
	presence Presence
	logger   *slog.Logger

	mu      sync.Mutex
	handler channels.InboundHandler
	botUser *discordgo.User
	cursors map[string]string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Discord adapter from configuration. presence may be nil.
func New(cfg config.DiscordConfig, presence Presence, logger *slog.Logger) (*Adapter, error) {
	if cfg.BotToken == "" {
		return nil, channels.ErrAuthentication("discord bot token is required", nil)
	}
	if len(cfg.ChannelIDs) == 0 {
		return nil, channels.ErrInvalidInput("at least one discord channel ID is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:      cfg,
		presence: presence,
		logger:   logger.With("component", "channels", "channel", "discord"),
		cursors:  map[string]string{},
	}, nil
}

func (a *Adapter) ID() models.ChannelID { return models.ChannelDiscord }

func (a *Adapter) SetInboundHandler(handler channels.InboundHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

// Start verifies the token, seeds the per-channel cursors so the
// backlog is skipped, and launches the poll loop.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return channels.ErrInvalidInput("discord adapter already started", nil)
	}

	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.cfg.BotToken)
		if err != nil {
			return channels.ErrAuthentication("create discord session", err)
		}
		a.session = dg
	}

	me, err := a.session.User("@me")
	if err != nil {
		return channels.ErrAuthentication("discord token rejected", err)
	}
	a.botUser = me

	for _, channelID := range a.cfg.ChannelIDs {
		msgs, err := a.session.ChannelMessages(channelID, 1, "", "", "")
		if err != nil {
			return channels.ErrConnection(fmt.Sprintf("read channel %s", channelID), err)
		}
		if len(msgs) > 0 {
			a.cursors[channelID] = msgs[0].ID
		}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.presence != nil && a.cfg.PresenceEnabled {
		if err := a.presence.Start(pollCtx); err != nil {
			cancel()
			a.cancel = nil
			return channels.ErrConnection("start presence", err)
		}
	}

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	a.logger.Info("discord adapter started",
		"user", me.Username,
		"channels", len(a.cfg.ChannelIDs),
		"pollIntervalMs", a.cfg.PollIntervalMs)
	return nil
}

// Stop halts polling and tears down presence. Idempotent.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	a.wg.Wait()
	return nil
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()
	defer func() {
		if a.presence != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := a.presence.Stop(stopCtx); err != nil {
				a.logger.Warn("presence stop failed", "error", err)
			}
		}
	}()

	interval := time.Duration(a.cfg.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Duration(config.DefaultPollIntervalMs) * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, channelID := range a.cfg.ChannelIDs {
				a.pollChannel(ctx, channelID)
			}
		}
	}
}

// pollChannel fetches messages after the cursor, oldest first, and
// dispatches the ones addressed to the bot.
func (a *Adapter) pollChannel(ctx context.Context, channelID string) {
	a.mu.Lock()
	cursor := a.cursors[channelID]
	handler := a.handler
	a.mu.Unlock()

	msgs, err := a.session.ChannelMessages(channelID, 50, "", cursor, "")
	if err != nil {
		a.logger.Warn("poll failed", "channelID", channelID, "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	// The API returns newest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		a.mu.Lock()
		a.cursors[channelID] = m.ID
		a.mu.Unlock()

		if m.Author == nil || m.Author.Bot {
			continue
		}
		if a.botUser != nil && m.Author.ID == a.botUser.ID {
			continue
		}
		if a.cfg.MentionOnlyEnabled() && !a.mentionsBot(m) {
			continue
		}
		if handler == nil {
			continue
		}

		if err := a.session.MessageReactionAdd(m.ChannelID, m.ID, ackEmoji); err != nil {
			a.logger.Debug("ack reaction failed", "messageID", m.ID, "error", err)
		}

		handler(ctx, a.convert(m))
	}
}

// mentionsBot reports whether the message addresses the bot, either by
// a structured mention or a plain-text @username.
func (a *Adapter) mentionsBot(m *discordgo.Message) bool {
	if a.botUser == nil {
		return false
	}
	for _, u := range m.Mentions {
		if u.ID == a.botUser.ID {
			return true
		}
	}
	return strings.Contains(m.Content, "@"+a.botUser.Username)
}

func (a *Adapter) convert(m *discordgo.Message) models.InboundMessage {
	text := m.Content
	if a.botUser != nil {
		for _, token := range []string{
			"<@" + a.botUser.ID + ">",
			"<@!" + a.botUser.ID + ">",
			"@" + a.botUser.Username,
		} {
			text = strings.ReplaceAll(text, token, "")
		}
	}

	msg := models.InboundMessage{
		Channel:    models.ChannelDiscord,
		PeerID:     m.ChannelID,
		Text:       strings.TrimSpace(text),
		MessageID:  m.ID,
		ReceivedAt: time.Now(),
	}
	if a.botUser != nil {
		msg.AccountID = a.botUser.ID
	}
	if !m.Timestamp.IsZero() {
		msg.ReceivedAt = m.Timestamp
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			ID:       att.ID,
			Type:     attachmentType(att.ContentType),
			URL:      att.URL,
			Filename: att.Filename,
			MimeType: att.ContentType,
			Size:     int64(att.Size),
		})
	}
	return msg
}

func attachmentType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "document"
	}
}

// Send delivers a reply to the peer's Discord channel, threading it to
// the original message when ReplyToID is set.
func (a *Adapter) Send(ctx context.Context, msg models.OutboundMessage) error {
	if a.session == nil {
		return channels.ErrConnection("discord adapter not started", nil)
	}
	if msg.PeerID == "" {
		return channels.ErrInvalidInput("outbound message has no peer", nil)
	}

	var err error
	if msg.ReplyToID != "" {
		_, err = a.session.ChannelMessageSendComplex(msg.PeerID, &discordgo.MessageSend{
			Content:   msg.Text,
			Reference: &discordgo.MessageReference{MessageID: msg.ReplyToID, ChannelID: msg.PeerID},
		})
	} else {
		_, err = a.session.ChannelMessageSend(msg.PeerID, msg.Text)
	}
	if err != nil {
		if isRateLimited(err) {
			return channels.NewError(channels.ErrCodeRateLimit, "discord rate limited", err)
		}
		return channels.ErrConnection("discord send failed", err)
	}
	return nil
}

// NotifyTyping shows the typing indicator, refreshing it until ctx is
// cancelled when the heartbeat is enabled. Best effort.
func (a *Adapter) NotifyTyping(ctx context.Context, msg models.OutboundMessage) error {
	if a.session == nil || msg.PeerID == "" {
		return nil
	}
	if err := a.session.ChannelTyping(msg.PeerID); err != nil {
		a.logger.Debug("typing indicator failed", "error", err)
		return nil
	}
	if !a.cfg.TypingHeartbeat {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.session.ChannelTyping(msg.PeerID); err != nil {
					return
				}
			}
		}
	}()
	return nil
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "Too Many Requests")
}
