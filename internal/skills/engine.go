package skills

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/openclaw/internal/workspace"
)

// Match pairs a skill with the arguments extracted from a message.
type Match struct {
	Definition *Definition
	Args       string
	Explicit   bool
}

// Result is the outcome of one skill invocation.
type Result struct {
	SkillName  string
	ExecutorID string
	Duration   time.Duration
	Output     string
	Err        error
}

// Executor runs a skill entrypoint.
type Executor interface {
	Name() string
	Available() bool
	CanRun(scriptPath string) bool
	Run(ctx context.Context, def *Definition, scriptPath, args string) (string, error)
}

// Engine matches messages against the registry and runs skill scripts
// through the executor chain, confined to the workspace guard.
type Engine struct {
	registry       *Registry
	guard          *workspace.Guard
	executors      []Executor
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewEngine wires an engine. Executors are tried in order; the first one
// that is available and claims the script wins.
func NewEngine(registry *Registry, guard *workspace.Guard, executors []Executor, defaultTimeout time.Duration, logger *slog.Logger) *Engine {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default().With("component", "skills")
	}
	return &Engine{
		registry:       registry,
		guard:          guard,
		executors:      executors,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Registry returns the engine's skill registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// MatchMessage finds the skill a message triggers, explicit slash
// invocations first, then implicit containment. Returns nil when nothing
// matches.
func (e *Engine) MatchMessage(text string) *Match {
	if m := e.MatchExplicit(text); m != nil {
		return m
	}
	return e.MatchImplicit(text)
}

// MatchExplicit recognizes "/skill <name> [args]" and "/<name> [args]".
// Names are matched case-insensitively with whitespace and underscores
// normalized to hyphens. An unknown name yields no match.
func (e *Engine) MatchExplicit(text string) *Match {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return nil
	}
	rest := trimmed[1:]
	token, args := splitCommand(rest)
	if token == "" {
		return nil
	}
	if normalizeName(token) == "skill" {
		token, args = splitCommand(args)
		if token == "" {
			return nil
		}
	}
	def := e.registry.Find(normalizeName(token))
	if def == nil || !def.UserInvocable() {
		return nil
	}
	return &Match{Definition: def, Args: strings.TrimSpace(args), Explicit: true}
}

// MatchImplicit finds a skill whose name appears as a word in the
// message. Only user-invocable skills that do not require explicit
// invocation participate; when several names appear the longest wins.
// The matched text is not consumed: the whole message becomes the args.
func (e *Engine) MatchImplicit(text string) *Match {
	normalized := " " + normalizeText(text) + " "
	var best *Definition
	for _, def := range e.registry.All() {
		if !def.UserInvocable() || def.RequiresExplicitInvocation() {
			continue
		}
		needle := " " + strings.ReplaceAll(def.Name, "-", " ") + " "
		if !strings.Contains(normalized, needle) {
			continue
		}
		if best == nil || len(def.Name) > len(best.Name) {
			best = def
		}
	}
	if best == nil {
		return nil
	}
	return &Match{Definition: best, Args: strings.TrimSpace(text), Explicit: false}
}

// Invoke runs a matched skill and wraps the outcome in a Result. An
// explicit invocation that produces no output is a failure; errors from
// implicit invocations are the caller's to swallow.
func (e *Engine) Invoke(ctx context.Context, match *Match) Result {
	def := match.Definition
	result := Result{SkillName: def.Name}

	entry := def.Entrypoint()
	if entry == "" {
		result.Err = fmt.Errorf("skill %s has no entrypoint", def.Name)
		return result
	}
	// Entrypoints are declared relative to the skill's own directory.
	// The guard still confines the joined path to the workspace.
	scriptRef := entry
	if def.Dir != "" && !filepath.IsAbs(entry) {
		scriptRef = filepath.Join(def.Dir, entry)
	}
	scriptPath, err := e.guard.Resolve(scriptRef)
	if err != nil {
		result.Err = fmt.Errorf("resolve entrypoint: %w", err)
		return result
	}

	exec := e.pickExecutor(def, scriptPath)
	if exec == nil {
		result.Err = fmt.Errorf("no executor for %s", entry)
		return result
	}
	result.ExecutorID = exec.Name()

	timeout := e.defaultTimeout
	if ms := def.TimeoutMs(); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	output, err := exec.Run(runCtx, def, scriptPath, match.Args)
	elapsed := time.Since(started)
	result.Duration = elapsed

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("skill %s timed out after %s", def.Name, timeout)
		}
		e.logger.Warn("skill invocation failed", "skill", def.Name, "executor", exec.Name(), "elapsed", elapsed, "error", err)
		result.Err = err
		return result
	}

	output = strings.TrimSpace(output)
	if output == "" && match.Explicit {
		result.Err = fmt.Errorf("skill %s produced no output", def.Name)
		return result
	}

	e.logger.Debug("skill invocation completed", "skill", def.Name, "executor", exec.Name(), "elapsed", elapsed)
	result.Output = output
	return result
}

// pickExecutor honors a declared primaryEnv before falling back to
// extension-based matching.
func (e *Engine) pickExecutor(def *Definition, scriptPath string) Executor {
	if env := def.PrimaryEnv(); env != "" {
		if name := executorNameForEnv(env); name != "" {
			for _, exec := range e.executors {
				if exec.Name() == name && exec.Available() {
					return exec
				}
			}
		}
	}
	for _, exec := range e.executors {
		if exec.Available() && exec.CanRun(scriptPath) {
			return exec
		}
	}
	return nil
}

// executorNameForEnv maps a primaryEnv value to an executor name.
// Unknown environments fall through to extension-based matching.
func executorNameForEnv(env string) string {
	switch env {
	case "js", "node", "javascript":
		return "js"
	case "python", "python3", "sh", "bash", "shell", "binary", "process":
		return "process"
	}
	return ""
}

func splitCommand(s string) (token, rest string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if idx := strings.IndexAny(s, " \t\n"); idx >= 0 {
		return s[:idx], strings.TrimSpace(s[idx+1:])
	}
	return s, ""
}

// normalizeName maps a user-typed skill token to registry form.
func normalizeName(token string) string {
	lower := strings.ToLower(strings.TrimSpace(token))
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r == '_' || r == ' ' || r == '\t':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeText lowercases a message and collapses non-alphanumerics to
// single spaces for word-boundary matching.
func normalizeText(text string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	lastSpace := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
