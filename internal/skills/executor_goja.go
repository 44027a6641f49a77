package skills

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/openclaw/openclaw/internal/workspace"
)

// jsInterruptReason is the value Interrupt is called with on timeout.
const jsInterruptReason = "execution cancelled"

// JSExecutor runs JavaScript skills in an embedded interpreter, with a
// small host API that is confined to the workspace guard. No Node
// install is required.
type JSExecutor struct {
	guard      *workspace.Guard
	httpClient *http.Client
	enabled    bool
	logger     *slog.Logger
}

// NewJSExecutor returns the embedded JavaScript executor.
func NewJSExecutor(guard *workspace.Guard, logger *slog.Logger) *JSExecutor {
	if logger == nil {
		logger = slog.Default().With("component", "skills.js")
	}
	return &JSExecutor{
		guard:      guard,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		enabled:    true,
		logger:     logger,
	}
}

func (e *JSExecutor) Name() string { return "js" }

func (e *JSExecutor) Available() bool { return e.enabled }

func (e *JSExecutor) CanRun(scriptPath string) bool {
	switch strings.ToLower(filepath.Ext(scriptPath)) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}

// Run evaluates the script. Output is the script's final expression
// value when non-empty, falling back to the last non-empty log() entry.
// The interpreter is interrupted when ctx expires.
func (e *JSExecutor) Run(ctx context.Context, def *Definition, scriptPath, args string) (string, error) {
	source, err := e.guard.ReadFile(scriptPath)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}

	vm := goja.New()
	var logged []string
	if err := e.installHostAPI(vm, def, args, &logged); err != nil {
		return "", err
	}

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(jsInterruptReason)
		case <-watchdogDone:
		}
	}()

	value, err := vm.RunScript(def.Name, string(source))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("script error: %w", err)
	}

	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		if out := strings.TrimSpace(value.String()); out != "" {
			return out, nil
		}
	}
	for i := len(logged) - 1; i >= 0; i-- {
		if out := strings.TrimSpace(logged[i]); out != "" {
			return out, nil
		}
	}
	return "", nil
}

// installHostAPI exposes the sandboxed host functions. Errors returned
// from Go callbacks surface as thrown JavaScript exceptions.
func (e *JSExecutor) installHostAPI(vm *goja.Runtime, def *Definition, args string, logged *[]string) error {
	throw := func(err error) goja.Value {
		panic(vm.ToValue(err.Error()))
	}

	logFn := func(values ...goja.Value) {
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, v.String())
		}
		entry := strings.Join(parts, " ")
		*logged = append(*logged, entry)
		e.logger.Info("skill log", "skill", def.Name, "message", entry)
	}

	globals := map[string]any{
		"args":  args,
		"skill": def.Name,
		"log":   logFn,
		// print is a legacy alias for log.
		"print": logFn,
		"readFile": func(path string) goja.Value {
			data, err := e.guard.ReadFile(path)
			if err != nil {
				return throw(err)
			}
			return vm.ToValue(string(data))
		},
		"writeFile": func(path, content string) goja.Value {
			if err := e.guard.WriteFile(path, []byte(content)); err != nil {
				return throw(err)
			}
			return goja.Undefined()
		},
		"mkdir": func(path string) goja.Value {
			if err := e.guard.Mkdir(path); err != nil {
				return throw(err)
			}
			return goja.Undefined()
		},
		"exists": func(path string) goja.Value {
			ok, err := e.guard.Exists(path)
			if err != nil {
				return throw(err)
			}
			return vm.ToValue(ok)
		},
		"httpGet": func(rawURL string) goja.Value {
			body, err := e.httpGet(rawURL)
			if err != nil {
				return throw(err)
			}
			return vm.ToValue(body)
		},
	}
	for name, fn := range globals {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("install host api %s: %w", name, err)
		}
	}
	return nil
}

func (e *JSExecutor) httpGet(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("scheme %q not allowed", parsed.Scheme)
	}
	resp, err := e.httpClient.Get(parsed.String())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
