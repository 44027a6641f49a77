// Package channels defines the transport adapter contract and the
// registry that routes outbound messages with retry, throttling, and
// health tracking.
package channels

import (
	"context"

	"github.com/openclaw/openclaw/pkg/models"
)

// InboundHandler receives messages an adapter pulled from its transport.
type InboundHandler func(ctx context.Context, msg models.InboundMessage)

// Adapter is one messaging transport.
type Adapter interface {
	// ID returns the channel identifier.
	ID() models.ChannelID

	// Start connects to the transport and begins delivering inbound
	// messages. It returns once the adapter is running.
	Start(ctx context.Context) error

	// Stop disconnects and releases resources. Idempotent.
	Stop(ctx context.Context) error

	// SetInboundHandler installs the handler for inbound messages.
	// Must be called before Start.
	SetInboundHandler(handler InboundHandler)

	// Send delivers one outbound message.
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// TypingNotifier is implemented by adapters that can show a typing
// indicator while a reply is being generated.
type TypingNotifier interface {
	NotifyTyping(ctx context.Context, msg models.OutboundMessage) error
}
