package providers

import (
	"context"
	"strings"
	"testing"
)

// fakeEngine is an in-memory LocalModelEngine.
type fakeEngine struct {
	loaded     bool
	loadedPath string
	runtime    string
	cancelled  []string
	reply      string
	tokens     []string
}

func (f *fakeEngine) LoadModel(ctx context.Context, modelPath string) error {
	f.loaded = true
	f.loadedPath = modelPath
	return nil
}

func (f *fakeEngine) UnloadModel(ctx context.Context) error {
	f.loaded = false
	return nil
}

func (f *fakeEngine) IsModelLoaded() bool { return f.loaded }

func (f *fakeEngine) Generate(ctx context.Context, prompt string, onToken func(string)) (string, error) {
	for _, tok := range f.tokens {
		onToken(tok)
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return strings.Join(f.tokens, ""), nil
}

func (f *fakeEngine) SwitchRuntime(ctx context.Context, runtime string) error {
	f.runtime = runtime
	return nil
}

func (f *fakeEngine) CancelGeneration(token string) {
	f.cancelled = append(f.cancelled, token)
}

func (f *fakeEngine) SaveState(path string) error    { return nil }
func (f *fakeEngine) RestoreState(path string) error { return nil }

func TestLocalProviderLazyLoad(t *testing.T) {
	engine := &fakeEngine{reply: "generated"}
	p := NewLocalProvider(engine, "/models/tiny.gguf")

	resp, err := p.Generate(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "generated" {
		t.Errorf("text = %q", resp.Text)
	}
	if !engine.loaded || engine.loadedPath != "/models/tiny.gguf" {
		t.Errorf("model not loaded: %+v", engine)
	}
}

func TestLocalProviderMissingModelPath(t *testing.T) {
	p := NewLocalProvider(&fakeEngine{}, "")
	if _, err := p.Generate(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Error("missing model path accepted")
	}
}

func TestLocalProviderRuntimeHint(t *testing.T) {
	engine := &fakeEngine{reply: "ok"}
	p := NewLocalProvider(engine, "/m")
	_, err := p.Generate(context.Background(), Request{
		Prompt: "x",
		Policy: Policy{LocalRuntimeHints: map[string]string{"runtime": "metal"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if engine.runtime != "metal" {
		t.Errorf("runtime = %q", engine.runtime)
	}
}

func TestLocalProviderCancellation(t *testing.T) {
	engine := &fakeEngine{reply: "never"}
	p := NewLocalProvider(engine, "/m")

	p.Cancel("req-1")
	if len(engine.cancelled) != 1 || engine.cancelled[0] != "req-1" {
		t.Errorf("engine not notified: %v", engine.cancelled)
	}

	_, err := p.Generate(context.Background(), Request{
		Prompt: "x",
		Policy: Policy{AllowCancellation: true, CancellationToken: "req-1"},
	})
	if err == nil || !strings.Contains(err.Error(), "cancel") {
		t.Errorf("want cancellation error, got %v", err)
	}

	// The token is consumed; the next request runs normally.
	resp, err := p.Generate(context.Background(), Request{
		Prompt: "x",
		Policy: Policy{AllowCancellation: true, CancellationToken: "req-1"},
	})
	if err != nil || resp.Text != "never" {
		t.Errorf("token not consumed: %v, %+v", err, resp)
	}
}

func TestLocalProviderStreamsTokens(t *testing.T) {
	engine := &fakeEngine{tokens: []string{"a", "b", "c"}}
	p := NewLocalProvider(engine, "/m")

	var got []string
	resp, err := p.GenerateStream(context.Background(), Request{Prompt: "x"}, func(c StreamChunk) {
		got = append(got, c.Text)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if resp.Text != "abc" || len(got) != 3 {
		t.Errorf("resp = %+v, chunks = %v", resp, got)
	}
}
