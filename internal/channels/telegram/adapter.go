// Package telegram implements a long-polling Telegram adapter on top
// of the go-telegram bot client.
package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/pkg/models"
)

// typingInterval is how often the chat action is refreshed while a
// reply is being generated. Telegram's indicator expires after ~5s.
const typingInterval = 4 * time.Second

// botClient is the slice of the bot API the adapter uses, extracted so
// tests can script it.
type botClient interface {
	GetMe(ctx context.Context) (*tgmodels.User, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
	Start(ctx context.Context)
}

type realBotClient struct {
	bot *bot.Bot
}

func (r *realBotClient) GetMe(ctx context.Context) (*tgmodels.User, error) {
	return r.bot.GetMe(ctx)
}

func (r *realBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	return r.bot.SendMessage(ctx, params)
}

func (r *realBotClient) SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error) {
	return r.bot.SendChatAction(ctx, params)
}

func (r *realBotClient) Start(ctx context.Context) {
	r.bot.Start(ctx)
}

// Adapter long-polls the Telegram Bot API for updates.
type Adapter struct {
	cfg    config.TelegramConfig
	client botClient
	logger *slog.Logger

	mu        sync.Mutex
	handler   channels.InboundHandler
	me        *tgmodels.User
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a Telegram adapter from configuration.
func New(cfg config.TelegramConfig, logger *slog.Logger) (*Adapter, error) {
	if cfg.BotToken == "" {
		return nil, channels.ErrAuthentication("telegram bot token is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger.With("component", "channels", "channel", "telegram"),
	}, nil
}

func (a *Adapter) ID() models.ChannelID { return models.ChannelTelegram }

func (a *Adapter) SetInboundHandler(handler channels.InboundHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

// Start verifies the token with getMe and launches the long-poll loop.
// Updates older than the start time are dropped so a restart does not
// replay the backlog.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return channels.ErrInvalidInput("telegram adapter already started", nil)
	}

	if a.client == nil {
		b, err := bot.New(a.cfg.BotToken, bot.WithDefaultHandler(a.handleUpdate))
		if err != nil {
			return channels.ErrAuthentication("create telegram bot", err)
		}
		a.client = &realBotClient{bot: b}
	}

	me, err := a.client.GetMe(ctx)
	if err != nil {
		return channels.ErrAuthentication("telegram token rejected", err)
	}
	a.me = me
	a.startedAt = time.Now()

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.client.Start(runCtx)
	}()

	a.logger.Info("telegram adapter started", "user", me.Username)
	return nil
}

// Stop halts long polling. Idempotent.
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

func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	a.handleMessage(ctx, update)
}

// handleMessage filters and converts one update, then dispatches it.
func (a *Adapter) handleMessage(ctx context.Context, update *tgmodels.Update) {
	if update == nil || update.Message == nil {
		return
	}
	m := update.Message

	a.mu.Lock()
	handler := a.handler
	me := a.me
	startedAt := a.startedAt
	a.mu.Unlock()

	if handler == nil {
		return
	}
	if m.From != nil && m.From.IsBot {
		return
	}
	// Skip updates queued before this process started.
	if !startedAt.IsZero() && int64(m.Date) < startedAt.Unix() {
		return
	}

	text := m.Text
	if isGroupChat(m.Chat.Type) && a.cfg.MentionOnlyEnabled() {
		if me == nil || !mentionsUser(m, me.Username) {
			return
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, "@"+me.Username, ""))
	}

	msg := models.InboundMessage{
		Channel:    models.ChannelTelegram,
		PeerID:     strconv.FormatInt(m.Chat.ID, 10),
		Text:       text,
		MessageID:  strconv.Itoa(m.ID),
		ReceivedAt: time.Unix(int64(m.Date), 0),
	}
	if me != nil {
		msg.AccountID = strconv.FormatInt(me.ID, 10)
	}
	msg.Attachments = convertAttachments(m)

	handler(ctx, msg)
}

func isGroupChat(t tgmodels.ChatType) bool {
	return t == tgmodels.ChatTypeGroup || t == tgmodels.ChatTypeSupergroup
}

// mentionsUser checks the message entities for an @username mention of
// the bot, falling back to a plain-text scan.
func mentionsUser(m *tgmodels.Message, username string) bool {
	if username == "" {
		return false
	}
	needle := "@" + username
	for _, e := range m.Entities {
		if e.Type != tgmodels.MessageEntityTypeMention {
			continue
		}
		start, end := e.Offset, e.Offset+e.Length
		if start >= 0 && end <= len(m.Text) && m.Text[start:end] == needle {
			return true
		}
	}
	return strings.Contains(m.Text, needle)
}

func convertAttachments(m *tgmodels.Message) []models.Attachment {
	var out []models.Attachment
	if len(m.Photo) > 0 {
		photo := m.Photo[len(m.Photo)-1] // largest size last
		out = append(out, models.Attachment{ID: photo.FileID, Type: "image"})
	}
	if m.Document != nil {
		out = append(out, models.Attachment{
			ID:       m.Document.FileID,
			Type:     "document",
			Filename: m.Document.FileName,
			MimeType: m.Document.MimeType,
		})
	}
	if m.Voice != nil {
		out = append(out, models.Attachment{
			ID:       m.Voice.FileID,
			Type:     "audio",
			MimeType: m.Voice.MimeType,
		})
	}
	return out
}

// Send delivers a reply to the peer's chat.
func (a *Adapter) Send(ctx context.Context, msg models.OutboundMessage) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return channels.ErrConnection("telegram adapter not started", nil)
	}

	chatID, err := strconv.ParseInt(msg.PeerID, 10, 64)
	if err != nil {
		return channels.ErrInvalidInput("telegram peer ID is not a chat ID", err)
	}

	params := &bot.SendMessageParams{ChatID: chatID, Text: msg.Text}
	if msg.ReplyToID != "" {
		if replyID, err := strconv.Atoi(msg.ReplyToID); err == nil {
			params.ReplyParameters = &tgmodels.ReplyParameters{MessageID: replyID}
		}
	}

	if _, err := client.SendMessage(ctx, params); err != nil {
		if isRateLimited(err) {
			return channels.NewError(channels.ErrCodeRateLimit, "telegram rate limited", err)
		}
		return channels.ErrConnection("telegram send failed", err)
	}
	return nil
}

// NotifyTyping shows the typing chat action, refreshing it until ctx
// is cancelled when the heartbeat is enabled. Best effort.
func (a *Adapter) NotifyTyping(ctx context.Context, msg models.OutboundMessage) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return nil
	}
	chatID, err := strconv.ParseInt(msg.PeerID, 10, 64)
	if err != nil {
		return nil
	}

	action := &bot.SendChatActionParams{ChatID: chatID, Action: tgmodels.ChatActionTyping}
	if _, err := client.SendChatAction(ctx, action); err != nil {
		a.logger.Debug("typing action failed", "error", err)
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
				if _, err := client.SendChatAction(ctx, action); err != nil {
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
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "429")
}
