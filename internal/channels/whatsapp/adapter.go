// Package whatsapp implements a WhatsApp Cloud API adapter. Inbound
// messages arrive on a webhook the host HTTP server mounts; outbound
// messages go through the Graph API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/pkg/models"
)

// defaultGraphBaseURL is the Meta Graph API root.
const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// webhookPayload mirrors the Cloud API webhook envelope, narrowed to
// the fields the adapter reads.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []inboundEntry `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundEntry struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *mediaRef `json:"image"`
	Document *mediaRef `json:"document"`
	Audio    *mediaRef `json:"audio"`
}

type mediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

// Adapter bridges the WhatsApp Cloud API webhook and send endpoint.
type Adapter struct {
	cfg        config.WhatsAppCloudConfig
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	mu      sync.Mutex
	handler channels.InboundHandler
	running bool
}

// New builds a WhatsApp Cloud adapter from configuration.
func New(cfg config.WhatsAppCloudConfig, logger *slog.Logger) (*Adapter, error) {
	if cfg.AccessToken == "" {
		return nil, channels.ErrAuthentication("whatsapp access token is required", nil)
	}
	if cfg.PhoneNumberID == "" {
		return nil, channels.ErrInvalidInput("whatsapp phone number ID is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultGraphBaseURL,
		logger:     logger.With("component", "channels", "channel", "whatsapp"),
	}, nil
}

func (a *Adapter) ID() models.ChannelID { return models.ChannelWhatsApp }

func (a *Adapter) SetInboundHandler(handler channels.InboundHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

// Start probes the Graph API to validate the access token. The adapter
// has no poll loop; inbound traffic arrives via the webhook handlers.
func (a *Adapter) Start(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s", a.baseURL, a.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return channels.ErrInvalidInput("build auth probe request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return channels.ErrConnection("whatsapp auth probe failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return channels.ErrAuthentication("whatsapp access token rejected", nil)
	}
	if resp.StatusCode >= 400 {
		return channels.ErrConnection(fmt.Sprintf("whatsapp auth probe returned %d", resp.StatusCode), nil)
	}

	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	a.logger.Info("whatsapp adapter started", "phoneNumberID", a.cfg.PhoneNumberID)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return nil
}

// HandleWebhookVerification answers Meta's subscription handshake: a
// GET with hub.mode=subscribe and the configured verify token echoes
// the challenge back.
func (a *Adapter) HandleWebhookVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != a.cfg.VerifyToken {
		a.logger.Warn("webhook verification rejected", "mode", mode)
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// HandleWebhookEvent parses a webhook POST and dispatches every text
// message to the inbound handler. It always answers 200 for payloads
// it could parse so Meta does not retry them.
func (a *Adapter) HandleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		a.logger.Warn("webhook payload rejected", "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			accountID := change.Value.Metadata.PhoneNumberID
			for _, m := range change.Value.Messages {
				msg, ok := convertInbound(m, accountID)
				if !ok || handler == nil {
					continue
				}
				handler(r.Context(), msg)
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

func convertInbound(m inboundEntry, accountID string) (models.InboundMessage, bool) {
	msg := models.InboundMessage{
		Channel:    models.ChannelWhatsApp,
		AccountID:  accountID,
		PeerID:     m.From,
		MessageID:  m.ID,
		ReceivedAt: time.Now(),
	}
	if ts, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		msg.ReceivedAt = time.Unix(ts, 0)
	}

	switch m.Type {
	case "text":
		if m.Text == nil {
			return models.InboundMessage{}, false
		}
		msg.Text = m.Text.Body
	case "image", "document", "audio":
		var ref *mediaRef
		switch m.Type {
		case "image":
			ref = m.Image
		case "document":
			ref = m.Document
		case "audio":
			ref = m.Audio
		}
		if ref == nil {
			return models.InboundMessage{}, false
		}
		msg.Attachments = []models.Attachment{{
			ID:       ref.ID,
			Type:     m.Type,
			Filename: ref.Filename,
			MimeType: ref.MimeType,
		}}
	default:
		return models.InboundMessage{}, false
	}
	return msg, true
}

// Send posts a text message to the peer through the Graph API.
func (a *Adapter) Send(ctx context.Context, msg models.OutboundMessage) error {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if !running {
		return channels.ErrConnection("whatsapp adapter not started", nil)
	}
	if msg.PeerID == "" {
		return channels.ErrInvalidInput("outbound message has no peer", nil)
	}

	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               msg.PeerID,
		Type:             "text",
		Text:             sendText{Body: msg.Text},
	})
	if err != nil {
		return channels.ErrInvalidInput("encode send payload", err)
	}

	url := fmt.Sprintf("%s/%s/messages", a.baseURL, a.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return channels.ErrInvalidInput("build send request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return channels.ErrConnection("whatsapp send failed", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return channels.NewError(channels.ErrCodeRateLimit, "whatsapp rate limited", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return channels.ErrAuthentication("whatsapp access token rejected", nil)
	default:
		detail := strings.TrimSpace(string(respBody))
		return channels.ErrConnection(fmt.Sprintf("whatsapp send returned %d: %s", resp.StatusCode, detail), nil)
	}
}
