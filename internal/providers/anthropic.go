package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProviderID identifies the Anthropic provider.
const AnthropicProviderID = "anthropic"

const (
	defaultAnthropicModel     = anthropic.ModelClaudeSonnet4_0
	defaultAnthropicMaxTokens = 4096
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider returns an Anthropic-backed provider.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	m := defaultAnthropicModel
	if model != "" {
		m = anthropic.Model(model)
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
	}
}

func (p *AnthropicProvider) ID() string { return AnthropicProviderID }

func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: defaultAnthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (Response, error) {
	msg, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return Response{}, fmt.Errorf("anthropic message: %w", err)
	}
	var full strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			full.WriteString(block.Text)
		}
	}
	return Response{
		Text:       full.String(),
		ProviderID: AnthropicProviderID,
		ModelID:    string(msg.Model),
	}, nil
}

// GenerateStream emits non-final token chunks; the router appends the
// final terminator.
func (p *AnthropicProvider) GenerateStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (Response, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			delta := ev.Delta.Text
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			if onChunk != nil {
				onChunk(StreamChunk{Text: delta})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, fmt.Errorf("anthropic stream: %w", err)
	}
	return Response{Text: full.String(), ProviderID: AnthropicProviderID, ModelID: string(p.model)}, nil
}
