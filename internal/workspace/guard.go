// Package workspace anchors every agent to a working directory: it seeds
// the bootstrap files, assembles their contents into prompt context, and
// enforces the path jail all skill file access goes through.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathViolationError reports an access attempt that escapes the workspace.
type PathViolationError struct {
	Workspace string
	Requested string
}

func (e *PathViolationError) Error() string {
	return fmt.Sprintf("path %q escapes workspace %q", e.Requested, e.Workspace)
}

// IsPathOutsideWorkspace reports whether err is a jail violation.
func IsPathOutsideWorkspace(err error) bool {
	_, ok := err.(*PathViolationError)
	return ok
}

// Guard confines file access to a canonical workspace root. Relative
// paths resolve against the root; absolute paths must already be inside it.
type Guard struct {
	root string
}

// NewGuard canonicalizes root and returns a guard for it. The directory
// is created if missing so symlinks can be resolved.
func NewGuard(root string) (*Guard, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize workspace root: %w", err)
	}
	return &Guard{root: canonical}, nil
}

// Root returns the canonical workspace root.
func (g *Guard) Root() string {
	return g.root
}

// Resolve maps a requested path to an absolute path inside the workspace,
// or returns a PathViolationError. Traversal via ".." and symlinked
// ancestors are both resolved before the containment check.
func (g *Guard) Resolve(requested string) (string, error) {
	trimmed := strings.TrimSpace(requested)
	if trimmed == "" {
		return "", &PathViolationError{Workspace: g.root, Requested: requested}
	}
	candidate := trimmed
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(g.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	// The target may not exist yet (writeFile, mkdir). Canonicalize the
	// nearest existing ancestor and re-append the remainder.
	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if resolved != g.root && !strings.HasPrefix(resolved, g.root+string(filepath.Separator)) {
		return "", &PathViolationError{Workspace: g.root, Requested: requested}
	}
	return resolved, nil
}

func resolveExisting(path string) (string, error) {
	var tail []string
	current := path
	for {
		canonical, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{canonical}, tail...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent
	}
}

// ReadFile reads a file inside the workspace.
func (g *Guard) ReadFile(requested string) ([]byte, error) {
	path, err := g.Resolve(requested)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// WriteFile writes a file inside the workspace, creating parent
// directories as needed.
func (g *Guard) WriteFile(requested string, data []byte) error {
	path, err := g.Resolve(requested)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Mkdir creates a directory (and parents) inside the workspace.
func (g *Guard) Mkdir(requested string) error {
	path, err := g.Resolve(requested)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

// Exists reports whether a path inside the workspace exists. Violations
// surface as errors, not as false.
func (g *Guard) Exists(requested string) (bool, error) {
	path, err := g.Resolve(requested)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
