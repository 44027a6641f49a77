// Package skills discovers SKILL.md definitions, matches them against
// incoming messages, and executes their entrypoints in sandboxed runners.
package skills

import (
	"strconv"
	"strings"
)

// SourceType indicates where a skill was discovered from.
type SourceType string

const (
	SourceExtra           SourceType = "extra"            // skills.extraDirs
	SourceBundled         SourceType = "bundled"          // shipped with the binary
	SourceManaged         SourceType = "managed"          // installed by tooling
	SourceHome            SourceType = "home"             // ~/.agents/skills
	SourceWorkspaceAgents SourceType = "workspace-agents" // <workspace>/.agents/skills
	SourceWorkspace       SourceType = "workspace"        // <workspace>/skills
)

// sourcePriorities orders sources for conflict resolution; higher wins.
var sourcePriorities = map[SourceType]int{
	SourceExtra:           0,
	SourceBundled:         1,
	SourceManaged:         2,
	SourceHome:            3,
	SourceWorkspaceAgents: 4,
	SourceWorkspace:       5,
}

// PriorityOf returns the conflict-resolution priority of a source.
func PriorityOf(source SourceType) int {
	return sourcePriorities[source]
}

// Definition is a parsed SKILL.md.
type Definition struct {
	// Name is the unique skill identifier (lowercase, hyphens allowed).
	Name string `json:"name"`

	// Description explains what the skill does and when to use it.
	Description string `json:"description"`

	// Metadata holds the remaining frontmatter fields, stringified.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Content is the markdown body.
	Content string `json:"-"`

	// Dir is the directory the SKILL.md was found in.
	Dir string `json:"dir"`

	// Source indicates where the skill was discovered from.
	Source SourceType `json:"source"`
}

// MetaString returns a trimmed metadata value.
func (d *Definition) MetaString(key string) string {
	return strings.TrimSpace(d.Metadata[key])
}

// MetaBool interprets a metadata value as a boolean, returning fallback
// when the key is absent or blank. Accepts 1/true/yes/on (case-insensitive)
// as true; everything else is false.
func (d *Definition) MetaBool(key string, fallback bool) bool {
	raw := d.MetaString(key)
	if raw == "" {
		return fallback
	}
	return parseBool(raw)
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// metaBoolAny returns the boolean value of the first spelling present,
// fallback when none is.
func (d *Definition) metaBoolAny(fallback bool, keys ...string) bool {
	for _, key := range keys {
		if raw := d.MetaString(key); raw != "" {
			return parseBool(raw)
		}
	}
	return fallback
}

// UserInvocable reports whether users may trigger the skill. Defaults
// to true.
func (d *Definition) UserInvocable() bool {
	return d.metaBoolAny(true, "userInvocable", "user-invocable")
}

// RequiresExplicitInvocation reports whether only slash commands may
// trigger the skill. Defaults to false.
func (d *Definition) RequiresExplicitInvocation() bool {
	return d.metaBoolAny(false, "requiresExplicitInvocation", "requires-explicit-invocation")
}

// ModelInvocationDisabled reports whether the skill is hidden from the
// model prompt snapshot. Defaults to false.
func (d *Definition) ModelInvocationDisabled() bool {
	return d.metaBoolAny(false, "disableModelInvocation", "disable-model-invocation")
}

// PrimaryEnv returns the declared execution environment, lowercased,
// "" when unset.
func (d *Definition) PrimaryEnv() string {
	for _, key := range []string{"primaryEnv", "primary-env", "primary_env"} {
		if v := d.MetaString(key); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

// Entrypoint returns the script path declared in the frontmatter,
// trying entrypoint, script, then run.
func (d *Definition) Entrypoint() string {
	for _, key := range []string{"entrypoint", "script", "run"} {
		if v := d.MetaString(key); v != "" {
			return v
		}
	}
	return ""
}

// TimeoutMs returns the per-skill timeout override in milliseconds, or 0
// when unset or malformed. All three spellings seen in the wild are
// accepted.
func (d *Definition) TimeoutMs() int {
	for _, key := range []string{"timeoutMs", "timeout-ms", "timeout_ms"} {
		raw := d.MetaString(key)
		if raw == "" {
			continue
		}
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			return ms
		}
	}
	return 0
}
