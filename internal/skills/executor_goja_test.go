package skills

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/openclaw/openclaw/internal/workspace"
)

func newJSFixture(t *testing.T, script string) (*JSExecutor, *workspace.Guard, string) {
	t.Helper()
	guard, err := workspace.NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	if err := guard.WriteFile("run.js", []byte(script)); err != nil {
		t.Fatalf("write script: %v", err)
	}
	path, err := guard.Resolve("run.js")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return NewJSExecutor(guard, nil), guard, path
}

func jsDef(name string) *Definition {
	return &Definition{Name: name, Description: "d", Metadata: map[string]string{}}
}

func TestJSExecutorCanRun(t *testing.T) {
	exec := NewJSExecutor(nil, nil)
	for _, path := range []string{"a.js", "b.MJS", "c.cjs"} {
		if !exec.CanRun(path) {
			t.Errorf("CanRun(%q) = false", path)
		}
	}
	for _, path := range []string{"a.py", "b.sh", "c"} {
		if exec.CanRun(path) {
			t.Errorf("CanRun(%q) = true", path)
		}
	}
}

func TestJSExecutorFinalValueIsOutput(t *testing.T) {
	exec, _, path := newJSFixture(t, `"final " + "value"`)
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "final value" {
		t.Errorf("output = %q", out)
	}
}

func TestJSExecutorFinalValueWinsOverLog(t *testing.T) {
	exec, _, path := newJSFixture(t, `log("progress note"); "the answer"`)
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "the answer" {
		t.Errorf("output = %q", out)
	}
}

func TestJSExecutorLastLogEntryFallback(t *testing.T) {
	exec, _, path := newJSFixture(t, `log("first"); log("hello", args);`)
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "world")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "hello world" {
		t.Errorf("output = %q", out)
	}
}

func TestJSExecutorPrintIsLogAlias(t *testing.T) {
	exec, _, path := newJSFixture(t, `print("via print");`)
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "via print" {
		t.Errorf("output = %q", out)
	}
}

func TestJSExecutorFileAPI(t *testing.T) {
	exec, guard, path := newJSFixture(t, `
mkdir("out");
writeFile("out/result.txt", "saved: " + args);
log(readFile("out/result.txt"), exists("out/result.txt"), exists("out/missing.txt"));
`)
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "data")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "saved: data true false" {
		t.Errorf("output = %q", out)
	}
	data, err := guard.ReadFile("out/result.txt")
	if err != nil || string(data) != "saved: data" {
		t.Errorf("file not written: %q, %v", data, err)
	}
}

func TestJSExecutorFileAPIJailed(t *testing.T) {
	exec, _, path := newJSFixture(t, `
try {
    readFile("../../etc/passwd");
    log("escaped");
} catch (e) {
    log("blocked: " + e);
}
`)
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "blocked:") {
		t.Errorf("jail not enforced: %q", out)
	}
}

func TestJSExecutorScriptError(t *testing.T) {
	exec, _, path := newJSFixture(t, `throw new Error("boom");`)
	if _, err := exec.Run(context.Background(), jsDef("demo"), path, ""); err == nil {
		t.Fatal("want script error")
	}
}

func TestJSExecutorInterruptOnTimeout(t *testing.T) {
	exec, _, path := newJSFixture(t, `while (true) {}`)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := exec.Run(ctx, jsDef("spin"), path, "")
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("want interrupt error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interpreter not interrupted")
	}
}

func TestJSExecutorHTTPGetRejectsBadScheme(t *testing.T) {
	exec, _, path := newJSFixture(t, `
try {
    httpGet("file:///etc/passwd");
    log("allowed");
} catch (e) {
    log("rejected");
}
`)
	out, err := exec.Run(context.Background(), jsDef("demo"), path, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "rejected" {
		t.Errorf("file scheme allowed: %q", out)
	}
}
