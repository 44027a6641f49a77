package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BootstrapFile is a file seeded into a fresh workspace.
type BootstrapFile struct {
	Name    string
	Content string
}

// BootstrapResult captures what EnsureFiles created or left alone.
type BootstrapResult struct {
	Created []string
	Skipped []string
}

// Bootstrap file names loaded into prompt context, in assembly order.
var contextFileNames = []string{"AGENTS.md", "SOUL.md", "USER.md", "IDENTITY.md", "MEMORY.md"}

// DefaultBootstrapFiles returns the default workspace seed set.
func DefaultBootstrapFiles() []BootstrapFile {
	return []BootstrapFile{
		{
			Name: "AGENTS.md",
			Content: "# AGENTS.md - Workspace Instructions\n\n" +
				"This workspace is the assistant's working directory.\n\n" +
				"## Safety\n" +
				"- Do not exfiltrate secrets or private data.\n" +
				"- Avoid destructive actions unless explicitly requested.\n\n" +
				"## Workflow\n" +
				"- Be concise in chat; put longer output in files.\n" +
				"- Ask clarifying questions when requirements are unclear.\n",
		},
		{
			Name: "SOUL.md",
			Content: "# SOUL.md - Persona & Boundaries\n\n" +
				"- Tone: concise, direct, and friendly.\n" +
				"- Ask clarifying questions when needed.\n",
		},
		{
			Name: "USER.md",
			Content: "# USER.md - User Profile\n\n" +
				"- Name:\n" +
				"- Preferred address:\n" +
				"- Timezone (optional):\n" +
				"- Notes:\n",
		},
		{
			Name: "IDENTITY.md",
			Content: "# IDENTITY.md - Agent Identity\n\n" +
				"- Name:\n" +
				"- Vibe:\n" +
				"- Emoji:\n",
		},
		{
			Name: "MEMORY.md",
			Content: "# MEMORY.md - Long-Term Memory\n\n" +
				"Capture durable facts, preferences, and decisions here.\n",
		},
	}
}

// EnsureFiles creates any missing bootstrap files under the agent's
// workspace directory. Existing files are never overwritten.
func EnsureFiles(root string, files []BootstrapFile) (BootstrapResult, error) {
	result := BootstrapResult{}
	base := strings.TrimSpace(root)
	if base == "" {
		return result, fmt.Errorf("workspace root is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return result, fmt.Errorf("create workspace dir: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSpace(file.Name)
		if name == "" {
			continue
		}
		path := filepath.Join(base, name)
		if _, err := os.Stat(path); err == nil {
			result.Skipped = append(result.Skipped, path)
			continue
		} else if !os.IsNotExist(err) {
			return result, fmt.Errorf("stat %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(file.Content), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", path, err)
		}
		result.Created = append(result.Created, path)
	}

	return result, nil
}

// BootstrapContext returns the prompt context block assembled from the
// workspace bootstrap files, or "" when none exist or all are empty.
// Missing files are skipped silently; any other read error is returned.
func BootstrapContext(root string) (string, error) {
	var sections []string
	for _, name := range contextFileNames {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		sections = append(sections, content)
	}
	if len(sections) == 0 {
		return "", nil
	}
	return "## Workspace Bootstrap Context\n\n" + strings.Join(sections, "\n\n"), nil
}

// AgentWorkspaceDir returns the per-agent workspace directory under root.
func AgentWorkspaceDir(root, agentID string) string {
	return filepath.Join(root, agentID)
}
