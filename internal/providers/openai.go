package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProviderID identifies the hosted OpenAI provider.
const OpenAIProviderID = "openai"

// OpenAICompatibleProviderID identifies any OpenAI-compatible endpoint.
const OpenAICompatibleProviderID = "openai-compatible"

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIProvider calls the OpenAI chat completion API, or any endpoint
// speaking the same protocol when a base URL is set.
type OpenAIProvider struct {
	id     string
	client *openai.Client
	model  string
}

// NewOpenAIProvider returns the hosted OpenAI provider.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		id:     OpenAIProviderID,
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAICompatibleProvider returns a provider for a compatible
// endpoint such as Ollama, vLLM, or a router gateway.
func NewOpenAICompatibleProvider(apiKey, baseURL, model string) (*OpenAIProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{
		id:     OpenAICompatibleProviderID,
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) ID() string { return p.id }

func (p *OpenAIProvider) request(req Request) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(req))
	if err != nil {
		return Response{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai completion: no choices")
	}
	return Response{
		Text:       resp.Choices[0].Message.Content,
		ProviderID: p.id,
		ModelID:    resp.Model,
	}, nil
}

// GenerateStream emits non-final token chunks; the router appends the
// final terminator.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (Response, error) {
	streamReq := p.request(req)
	streamReq.Stream = true
	stream, err := p.client.CreateChatCompletionStream(ctx, streamReq)
	if err != nil {
		return Response{}, fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{}, fmt.Errorf("openai stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onChunk != nil {
			onChunk(StreamChunk{Text: delta})
		}
	}
	return Response{Text: full.String(), ProviderID: p.id, ModelID: p.model}, nil
}
