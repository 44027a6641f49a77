package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// LocalProviderID identifies the embedded local-runtime provider.
const LocalProviderID = "local"

// LocalModelEngine abstracts an embedded inference runtime.
type LocalModelEngine interface {
	LoadModel(ctx context.Context, modelPath string) error
	UnloadModel(ctx context.Context) error
	IsModelLoaded() bool
	Generate(ctx context.Context, prompt string, onToken func(string)) (string, error)
	SwitchRuntime(ctx context.Context, runtime string) error
	CancelGeneration(token string)
	SaveState(path string) error
	RestoreState(path string) error
}

// LocalProvider bridges the router to an embedded model engine with
// cooperative cancellation by token.
type LocalProvider struct {
	engine    LocalModelEngine
	modelPath string

	mu        sync.Mutex
	cancelled map[string]bool
}

// NewLocalProvider wraps an engine with a configured model path.
func NewLocalProvider(engine LocalModelEngine, modelPath string) *LocalProvider {
	return &LocalProvider{
		engine:    engine,
		modelPath: modelPath,
		cancelled: map[string]bool{},
	}
}

func (p *LocalProvider) ID() string { return LocalProviderID }

// Cancel marks a cancellation token and forwards it to the engine.
func (p *LocalProvider) Cancel(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	p.mu.Lock()
	p.cancelled[token] = true
	p.mu.Unlock()
	p.engine.CancelGeneration(token)
}

func (p *LocalProvider) consumeCancelled(token string) bool {
	if token == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled[token] {
		delete(p.cancelled, token)
		return true
	}
	return false
}

func (p *LocalProvider) ensureLoaded(ctx context.Context, req Request) error {
	if runtime := req.Policy.LocalRuntimeHints["runtime"]; runtime != "" {
		if err := p.engine.SwitchRuntime(ctx, runtime); err != nil {
			return fmt.Errorf("switch runtime: %w", err)
		}
	}
	if p.engine.IsModelLoaded() {
		return nil
	}
	if p.modelPath == "" {
		return fmt.Errorf("local model path not configured")
	}
	if err := p.engine.LoadModel(ctx, p.modelPath); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	return nil
}

func (p *LocalProvider) Generate(ctx context.Context, req Request) (Response, error) {
	return p.GenerateStream(ctx, req, nil)
}

// GenerateStream runs the engine, forwarding tokens when onChunk is set.
// A request whose cancellation token was cancelled fails with a
// "generation cancelled" error before touching the engine.
func (p *LocalProvider) GenerateStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (Response, error) {
	token := strings.TrimSpace(req.Policy.CancellationToken)
	if req.Policy.AllowCancellation && p.consumeCancelled(token) {
		return Response{}, fmt.Errorf("generation cancelled")
	}
	if err := p.ensureLoaded(ctx, req); err != nil {
		return Response{}, err
	}

	onToken := func(string) {}
	if onChunk != nil {
		onToken = func(t string) { onChunk(StreamChunk{Text: t}) }
	}
	text, err := p.engine.Generate(ctx, req.Prompt, onToken)
	if err != nil {
		return Response{}, err
	}
	if req.Policy.AllowCancellation && p.consumeCancelled(token) {
		return Response{}, fmt.Errorf("generation cancelled")
	}
	return Response{Text: text, ProviderID: LocalProviderID}, nil
}
