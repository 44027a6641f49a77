// Package agent owns the run lifecycle: tool execution, the model call,
// the run deadline, and the diagnostic events each phase emits.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/openclaw/internal/diagnostics"
	"github.com/openclaw/openclaw/internal/providers"
)

// DefaultRunTimeout bounds a run end to end.
const DefaultRunTimeout = 30 * time.Second

// ToolFunc executes one registered tool.
type ToolFunc func(ctx context.Context, args string) (string, error)

// ToolInvocation names a tool to run before the model call.
type ToolInvocation struct {
	Name string
	Args string
}

// RunRequest describes one agent run.
type RunRequest struct {
	Prompt     string
	AgentID    string
	ProviderID string
	SessionKey string
	Tools      []ToolInvocation
	Policy     providers.Policy
	Metadata   map[string]string
}

// RunResult is a completed run.
type RunResult struct {
	RunID       string
	Text        string
	ProviderID  string
	ModelID     string
	ToolOutputs map[string]string
}

// Runtime executes runs against the provider router.
type Runtime struct {
	router  *providers.Router
	diag    *diagnostics.Pipeline
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.RWMutex
	tools map[string]ToolFunc
}

// NewRuntime wires a runtime. Pass timeout <= 0 for the default.
func NewRuntime(router *providers.Router, diag *diagnostics.Pipeline, timeout time.Duration, logger *slog.Logger) *Runtime {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	if logger == nil {
		logger = slog.Default().With("component", "agent")
	}
	return &Runtime{
		router:  router,
		diag:    diag,
		timeout: timeout,
		logger:  logger,
		tools:   map[string]ToolFunc{},
	}
}

// RegisterTool adds a named tool. Duplicate names are an error.
func (r *Runtime) RegisterTool(name string, fn ToolFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = fn
	return nil
}

// ToolNames returns the registered tool names, sorted.
func (r *Runtime) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the request: tools sequentially, then the model call,
// all under the run deadline.
func (r *Runtime) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	return r.run(ctx, req, nil)
}

// RunStream is Run with token streaming. Non-final chunks carry tokens;
// exactly one final chunk terminates a successful stream.
func (r *Runtime) RunStream(ctx context.Context, req RunRequest, onChunk func(providers.StreamChunk)) (RunResult, error) {
	if onChunk == nil {
		onChunk = func(providers.StreamChunk) {}
	}
	return r.run(ctx, req, onChunk)
}

type runOutcome struct {
	result RunResult
	err    error
}

func (r *Runtime) run(ctx context.Context, req RunRequest, onChunk func(providers.StreamChunk)) (RunResult, error) {
	runID := uuid.NewString()
	var startMeta map[string]string
	if req.AgentID != "" {
		startMeta = map[string]string{"agentID": req.AgentID}
	}
	r.emit(diagnostics.EventRunStarted, runID, req.SessionKey, startMeta)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &runState{}
	done := make(chan runOutcome, 1)
	go func() {
		done <- r.execute(runCtx, runID, req, state, onChunk)
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			r.emit(diagnostics.EventRunFailed, runID, req.SessionKey, map[string]string{
				"timedOut": "false",
				"error":    outcome.err.Error(),
			})
			return RunResult{}, outcome.err
		}
		r.emit(diagnostics.EventRunCompleted, runID, req.SessionKey, nil)
		return outcome.result, nil

	case <-timer.C:
		cancel()
		// The abandoned run counts as a failed model call whether or not
		// the call was ever dispatched.
		if state.trySettle() {
			r.emit(diagnostics.EventModelCallFailed, runID, req.SessionKey, map[string]string{
				"providerID": req.ProviderID,
				"timedOut":   "true",
			})
		}
		err := fmt.Errorf("run timed out after %s", r.timeout)
		r.emit(diagnostics.EventRunFailed, runID, req.SessionKey, map[string]string{
			"timedOut": "true",
			"error":    err.Error(),
		})
		return RunResult{}, err

	case <-ctx.Done():
		cancel()
		err := fmt.Errorf("run cancelled: %w", ctx.Err())
		r.emit(diagnostics.EventRunFailed, runID, req.SessionKey, map[string]string{
			"timedOut": "false",
			"error":    err.Error(),
		})
		return RunResult{}, err
	}
}

// runState arbitrates which path emits the model call's terminal event:
// the worker goroutine or the timeout branch. Exactly one wins.
type runState struct {
	mu      sync.Mutex
	settled bool
}

// trySettle claims the terminal event, returning false when the other
// path already has.
func (s *runState) trySettle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return false
	}
	s.settled = true
	return true
}

func (r *Runtime) execute(ctx context.Context, runID string, req RunRequest, state *runState, onChunk func(providers.StreamChunk)) runOutcome {
	toolOutputs := map[string]string{}
	prompt := req.Prompt
	for _, inv := range req.Tools {
		r.mu.RLock()
		fn, ok := r.tools[inv.Name]
		r.mu.RUnlock()
		if !ok {
			return runOutcome{err: fmt.Errorf("tool %q not registered", inv.Name)}
		}
		out, err := fn(ctx, inv.Args)
		if err != nil {
			return runOutcome{err: fmt.Errorf("tool %s: %w", inv.Name, err)}
		}
		toolOutputs[inv.Name] = out
		prompt += "\n\n## Tool Output (" + inv.Name + ")\n\n" + out
	}

	modelReq := providers.Request{
		Prompt:     prompt,
		ProviderID: req.ProviderID,
		Metadata:   req.Metadata,
		Policy:     req.Policy,
	}

	r.emit(diagnostics.EventModelCallStarted, runID, req.SessionKey, map[string]string{
		"providerID": req.ProviderID,
	})
	started := time.Now()

	var resp providers.Response
	var err error
	if onChunk != nil {
		resp, err = r.router.DispatchStream(ctx, modelReq, onChunk)
	} else {
		resp, err = r.router.Dispatch(ctx, modelReq)
	}
	latency := time.Since(started)

	if err != nil {
		if state.trySettle() {
			r.emit(diagnostics.EventModelCallFailed, runID, req.SessionKey, map[string]string{
				"providerID": req.ProviderID,
				"timedOut":   strconv.FormatBool(ctx.Err() != nil),
			})
		}
		return runOutcome{err: fmt.Errorf("model call: %w", err)}
	}

	if state.trySettle() {
		r.emit(diagnostics.EventModelCallCompleted, runID, req.SessionKey, map[string]string{
			"providerID": resp.ProviderID,
			"modelID":    resp.ModelID,
			"latencyMs":  strconv.FormatInt(latency.Milliseconds(), 10),
		})
	}

	return runOutcome{result: RunResult{
		RunID:       runID,
		Text:        resp.Text,
		ProviderID:  resp.ProviderID,
		ModelID:     resp.ModelID,
		ToolOutputs: toolOutputs,
	}}
}

func (r *Runtime) emit(name, runID, sessionKey string, metadata map[string]string) {
	if r.diag == nil {
		return
	}
	r.diag.Record(diagnostics.Event{
		Subsystem:  diagnostics.SubsystemRuntime,
		Name:       name,
		RunID:      runID,
		SessionKey: sessionKey,
		Metadata:   metadata,
	})
}
