package skills

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ProcessExecutor runs skill scripts as child processes, with the
// interpreter picked from the file extension. Unknown extensions are
// executed directly and must carry their own shebang.
type ProcessExecutor struct {
	lookPath func(string) (string, error)
}

// NewProcessExecutor returns a process-backed executor.
func NewProcessExecutor() *ProcessExecutor {
	return &ProcessExecutor{lookPath: exec.LookPath}
}

func (e *ProcessExecutor) Name() string { return "process" }

func (e *ProcessExecutor) Available() bool { return true }

func (e *ProcessExecutor) CanRun(scriptPath string) bool { return true }

// interpreterFor picks the interpreter from the skill's declared
// primaryEnv, then the file extension. A binary/process env and unknown
// extensions run the script directly.
func (e *ProcessExecutor) interpreterFor(def *Definition, scriptPath string) (string, bool) {
	switch def.PrimaryEnv() {
	case "python", "python3":
		return "python3", true
	case "bash":
		return "bash", true
	case "sh", "shell":
		return "sh", true
	case "js", "node", "javascript":
		return "node", true
	case "binary", "process":
		return "", false
	}
	switch strings.ToLower(filepath.Ext(scriptPath)) {
	case ".py":
		return "python3", true
	case ".sh":
		return "sh", true
	case ".js", ".mjs", ".cjs":
		return "node", true
	}
	return "", false
}

// Run executes the script with its directory as the working directory.
// Stdout is the skill output; when stdout is empty, trimmed stderr is
// used so diagnostics from print-to-stderr scripts still surface.
func (e *ProcessExecutor) Run(ctx context.Context, def *Definition, scriptPath, args string) (string, error) {
	var cmd *exec.Cmd
	if interpreter, ok := e.interpreterFor(def, scriptPath); ok {
		bin, err := e.lookPath(interpreter)
		if err != nil {
			return "", fmt.Errorf("interpreter %s not found: %w", interpreter, err)
		}
		argv := []string{scriptPath}
		if args != "" {
			argv = append(argv, args)
		}
		cmd = exec.CommandContext(ctx, bin, argv...)
	} else {
		var argv []string
		if args != "" {
			argv = append(argv, args)
		}
		cmd = exec.CommandContext(ctx, scriptPath, argv...)
	}
	cmd.Dir = filepath.Dir(scriptPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("script failed: %s", detail)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		out = strings.TrimSpace(stderr.String())
	}
	return out, nil
}
