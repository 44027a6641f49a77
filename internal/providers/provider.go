// Package providers defines the model provider contract and the router
// that dispatches requests across providers with fallback.
package providers

import (
	"context"
)

// Request is one model call.
type Request struct {
	// Prompt is the fully assembled prompt text.
	Prompt string `json:"prompt"`

	// ProviderID selects a provider; empty means the router default.
	ProviderID string `json:"providerID,omitempty"`

	// Metadata carries per-request hints (session key, channel, legacy
	// fallback spelling).
	Metadata map[string]string `json:"metadata,omitempty"`

	// Policy controls fallback and streaming behavior.
	Policy Policy `json:"policy"`
}

// Policy controls how the router and providers treat a request.
type Policy struct {
	// FallbackProviderIDs are tried in order after the primary fails.
	FallbackProviderIDs []string `json:"fallbackProviderIDs,omitempty"`

	// StreamTokens requests token streaming when the provider supports it.
	StreamTokens bool `json:"streamTokens,omitempty"`

	// AllowCancellation opts the request into cooperative cancellation.
	AllowCancellation bool `json:"allowCancellation,omitempty"`

	// CancellationToken identifies the request for cancellation.
	CancellationToken string `json:"cancellationToken,omitempty"`

	// LocalRuntimeHints tunes the embedded local runtime.
	LocalRuntimeHints map[string]string `json:"localRuntimeHints,omitempty"`
}

// Response is a completed model call.
type Response struct {
	Text       string `json:"text"`
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID,omitempty"`
}

// StreamChunk is one token batch from a streaming call. Exactly one
// chunk per stream has IsFinal set; its Text is empty.
type StreamChunk struct {
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"isFinal,omitempty"`
}

// Provider generates a completion for a request.
type Provider interface {
	ID() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// StreamingProvider additionally supports token streaming.
type StreamingProvider interface {
	Provider
	GenerateStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (Response, error)
}
