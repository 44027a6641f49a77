package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openclaw/openclaw/internal/config"
)

// Root is one skill discovery root with its source type.
type Root struct {
	Path   string
	Source SourceType
}

// DiscoveryRoots assembles the discovery roots in ascending precedence:
// extra dirs, bundled, managed, ~/.agents/skills, <workspace>/.agents/skills,
// <workspace>/skills. Later roots shadow earlier ones on name conflicts.
func DiscoveryRoots(cfg config.SkillsConfig, workspaceRoot, homeDir string) []Root {
	var roots []Root
	for _, dir := range cfg.ExtraDirs {
		if strings.TrimSpace(dir) != "" {
			roots = append(roots, Root{Path: dir, Source: SourceExtra})
		}
	}
	if cfg.BundledDir != "" {
		roots = append(roots, Root{Path: cfg.BundledDir, Source: SourceBundled})
	}
	if cfg.ManagedDir != "" {
		roots = append(roots, Root{Path: cfg.ManagedDir, Source: SourceManaged})
	}
	if homeDir != "" {
		roots = append(roots, Root{Path: filepath.Join(homeDir, ".agents", "skills"), Source: SourceHome})
	}
	if workspaceRoot != "" {
		roots = append(roots,
			Root{Path: filepath.Join(workspaceRoot, ".agents", "skills"), Source: SourceWorkspaceAgents},
			Root{Path: filepath.Join(workspaceRoot, "skills"), Source: SourceWorkspace},
		)
	}
	return roots
}

// DiscoverRoot scans one root for skills: a SKILL.md directly in the
// root, plus one SKILL.md per immediate subdirectory. Unparseable files
// are logged and skipped so one broken skill cannot hide the rest.
func DiscoverRoot(root Root, logger *slog.Logger) ([]*Definition, error) {
	if logger == nil {
		logger = slog.Default().With("component", "skills")
	}

	info, err := os.Stat(root.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root.Path)
	}

	var defs []*Definition
	appendSkill := func(path string) {
		def, err := ParseFile(path)
		if err != nil {
			logger.Warn("skipping invalid skill", "path", path, "error", err)
			return
		}
		def.Source = root.Source
		defs = append(defs, def)
	}

	if _, err := os.Stat(filepath.Join(root.Path, SkillFilename)); err == nil {
		appendSkill(filepath.Join(root.Path, SkillFilename))
	}

	entries, err := os.ReadDir(root.Path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(root.Path, entry.Name(), SkillFilename)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		appendSkill(candidate)
	}
	return defs, nil
}

// DiscoverAll scans every root and merges the results by precedence.
func DiscoverAll(roots []Root, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry()
	for _, root := range roots {
		defs, err := DiscoverRoot(root, logger)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", root.Path, err)
		}
		registry.Merge(defs)
	}
	return registry, nil
}
