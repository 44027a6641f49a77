// Package webchat provides an in-process channel adapter used by the
// local web chat surface and by tests: inbound messages are injected
// directly and outbound messages are captured.
package webchat

import (
	"context"
	"sync"

	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/pkg/models"
)

// Adapter is the in-memory web chat transport.
type Adapter struct {
	mu      sync.Mutex
	handler channels.InboundHandler
	running bool
	sent    []models.OutboundMessage
}

// New returns a web chat adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() models.ChannelID { return models.ChannelWebChat }

func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = true
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	return nil
}

func (a *Adapter) SetInboundHandler(handler channels.InboundHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

// Send captures the outbound message.
func (a *Adapter) Send(ctx context.Context, msg models.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return channels.ErrConnection("webchat adapter not running", nil)
	}
	a.sent = append(a.sent, msg)
	return nil
}

// Inject delivers an inbound message to the installed handler as if it
// arrived from a connected client.
func (a *Adapter) Inject(ctx context.Context, msg models.InboundMessage) error {
	a.mu.Lock()
	handler := a.handler
	running := a.running
	a.mu.Unlock()

	if !running {
		return channels.ErrConnection("webchat adapter not running", nil)
	}
	if handler == nil {
		return channels.ErrInvalidInput("no inbound handler installed", nil)
	}
	msg.Channel = models.ChannelWebChat
	handler(ctx, msg)
	return nil
}

// SentMessages returns a copy of everything sent so far.
func (a *Adapter) SentMessages() []models.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.OutboundMessage, len(a.sent))
	copy(out, a.sent)
	return out
}
