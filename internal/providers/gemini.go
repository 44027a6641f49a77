package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProviderID identifies the Gemini provider.
const GeminiProviderID = "gemini"

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider calls the Gemini API.
type GeminiProvider struct {
	apiKey string
	model  string
}

// NewGeminiProvider returns a Gemini-backed provider. The client is
// created per call because the SDK binds it to a context.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) ID() string { return GeminiProviderID }

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return Response{}, fmt.Errorf("gemini client: %w", err)
	}
	resp, err := client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), nil)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}
	return Response{
		Text:       resp.Text(),
		ProviderID: GeminiProviderID,
		ModelID:    p.model,
	}, nil
}
