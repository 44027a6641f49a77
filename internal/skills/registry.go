package skills

import (
	"sort"
	"strings"
	"sync"
)

// Registry holds the merged skill set, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Definition{}}
}

// Merge adds definitions, resolving name conflicts by source priority.
// An equal-priority duplicate replaces the existing entry, so scanning
// roots in ascending precedence yields later-wins semantics.
func (r *Registry) Merge(defs []*Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		existing, ok := r.byName[def.Name]
		if ok && PriorityOf(existing.Source) > PriorityOf(def.Source) {
			continue
		}
		r.byName[def.Name] = def
	}
}

// Replace swaps the registry contents, used by the hot-reload watcher.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	snapshot := make(map[string]*Definition, len(other.byName))
	for name, def := range other.byName {
		snapshot[name] = def
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.byName = snapshot
	r.mu.Unlock()
}

// Find returns the definition for a name, nil when absent.
func (r *Registry) Find(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns all definitions sorted by name.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.byName))
	for _, def := range r.byName {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// PromptSnapshot renders the skill block injected into model prompts:
// one subsection per skill carrying its description and markdown body.
// Skills with model invocation disabled are omitted; an empty result
// means no block is injected.
func (r *Registry) PromptSnapshot() string {
	var sections []string
	for _, def := range r.All() {
		if def.ModelInvocationDisabled() {
			continue
		}
		section := "### " + def.Name + "\n" + def.Description
		if body := strings.TrimSpace(def.Content); body != "" {
			section += "\n\n" + body
		}
		sections = append(sections, section)
	}
	if len(sections) == 0 {
		return ""
	}
	return "## Skills\n\n" + strings.Join(sections, "\n\n")
}
