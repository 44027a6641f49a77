package providers

import (
	"context"
	"strings"
)

// EchoProviderID is the built-in deterministic provider.
const EchoProviderID = "echo"

// EchoProvider answers with the prompt itself, "OK" when the prompt is
// empty. It needs no credentials and anchors tests and fresh installs.
type EchoProvider struct{}

// NewEchoProvider returns the echo provider.
func NewEchoProvider() *EchoProvider {
	return &EchoProvider{}
}

func (p *EchoProvider) ID() string { return EchoProviderID }

func (p *EchoProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	text := strings.TrimSpace(req.Prompt)
	if text == "" {
		text = "OK"
	}
	return Response{Text: text, ProviderID: EchoProviderID}, nil
}
