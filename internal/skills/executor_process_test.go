package skills

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestProcessExecutorShellScript(t *testing.T) {
	requireBinary(t, "sh")
	path := writeScript(t, t.TempDir(), "run.sh", "#!/bin/sh\necho \"got: $1\"\n")

	exec := NewProcessExecutor()
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "hello world")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "got: hello world" {
		t.Errorf("output = %q", out)
	}
}

func TestProcessExecutorStderrFallback(t *testing.T) {
	requireBinary(t, "sh")
	path := writeScript(t, t.TempDir(), "run.sh", "#!/bin/sh\necho \"only stderr\" 1>&2\n")

	exec := NewProcessExecutor()
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "only stderr" {
		t.Errorf("output = %q", out)
	}
}

func TestProcessExecutorFailureSurfacesStderr(t *testing.T) {
	requireBinary(t, "sh")
	path := writeScript(t, t.TempDir(), "run.sh", "#!/bin/sh\necho \"bad input\" 1>&2\nexit 3\n")

	exec := NewProcessExecutor()
	if _, err := exec.Run(context.Background(), jsDef("demo"), path, ""); err == nil || !strings.Contains(err.Error(), "bad input") {
		t.Errorf("want stderr in error, got %v", err)
	}
}

func TestProcessExecutorRunsInScriptDir(t *testing.T) {
	requireBinary(t, "sh")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sibling.txt"), []byte("neighbor"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeScript(t, dir, "run.sh", "#!/bin/sh\ncat sibling.txt\n")

	exec := NewProcessExecutor()
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "neighbor" {
		t.Errorf("output = %q", out)
	}
}

func TestProcessExecutorContextCancellation(t *testing.T) {
	requireBinary(t, "sh")
	path := writeScript(t, t.TempDir(), "run.sh", "#!/bin/sh\nsleep 10\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	exec := NewProcessExecutor()
	if _, err := exec.Run(ctx, jsDef("demo"), path, ""); err == nil {
		t.Fatal("want cancellation error")
	}
}

func TestProcessExecutorMissingInterpreter(t *testing.T) {
	exec := NewProcessExecutor()
	exec.lookPath = func(string) (string, error) { return "", os.ErrNotExist }
	path := writeScript(t, t.TempDir(), "run.py", "print('hi')\n")

	if _, err := exec.Run(context.Background(), jsDef("demo"), path, ""); err == nil || !strings.Contains(err.Error(), "python3") {
		t.Errorf("want interpreter error, got %v", err)
	}
}

func TestInterpreterSelection(t *testing.T) {
	exec := NewProcessExecutor()
	tests := []struct {
		path string
		want string
	}{
		{"run.py", "python3"},
		{"run.sh", "sh"},
		{"run.js", "node"},
		{"run.mjs", "node"},
		{"run.cjs", "node"},
	}
	for _, tt := range tests {
		got, ok := exec.interpreterFor(jsDef("demo"), tt.path)
		if !ok || got != tt.want {
			t.Errorf("interpreterFor(%q) = %q, %v; want %q", tt.path, got, ok, tt.want)
		}
	}
	if _, ok := exec.interpreterFor(jsDef("demo"), "run.bin"); ok {
		t.Error("unknown extension must run directly")
	}
}

func TestInterpreterFromPrimaryEnv(t *testing.T) {
	exec := NewProcessExecutor()
	tests := []struct {
		env    string
		path   string
		want   string
		direct bool
	}{
		{"python", "run", "python3", false},
		{"python3", "run.sh", "python3", false},
		{"bash", "run", "bash", false},
		{"shell", "run", "sh", false},
		{"node", "run", "node", false},
		{"binary", "run.py", "", true},
	}
	for _, tt := range tests {
		def := &Definition{Name: "demo", Metadata: map[string]string{"primaryEnv": tt.env}}
		got, ok := exec.interpreterFor(def, tt.path)
		if tt.direct {
			if ok {
				t.Errorf("env %q: want direct execution, got interpreter %q", tt.env, got)
			}
			continue
		}
		if !ok || got != tt.want {
			t.Errorf("env %q: interpreterFor = %q, %v; want %q", tt.env, got, ok, tt.want)
		}
	}
}
