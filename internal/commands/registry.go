package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry holds the registered commands and routes invocations.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	aliases  map[string]string
	logger   *slog.Logger
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands: map[string]*Command{},
		aliases:  map[string]string{},
		logger:   logger.With("component", "commands"),
	}
}

// Register adds a command. Duplicate names or alias collisions fail.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command is nil")
	}
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}

	name := strings.ToLower(strings.TrimSpace(cmd.Name))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	if owner, exists := r.aliases[name]; exists {
		return fmt.Errorf("command %q conflicts with alias of %q", name, owner)
	}
	r.commands[name] = cmd

	for _, alias := range cmd.Aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" || alias == name {
			continue
		}
		if _, exists := r.commands[alias]; exists {
			r.logger.Warn("alias shadows a command, skipping", "alias", alias, "command", name)
			continue
		}
		if _, exists := r.aliases[alias]; exists {
			r.logger.Warn("alias already taken, skipping", "alias", alias, "command", name)
			continue
		}
		r.aliases[alias] = name
	}
	return nil
}

// Find resolves a name or alias to its command.
func (r *Registry) Find(name string) (*Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return cmd, true
	}
	if canonical, ok := r.aliases[name]; ok {
		return r.commands[canonical], true
	}
	return nil, false
}

// All returns every registered command sorted by name.
func (r *Registry) All() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch parses text and, when it is a known command, executes it.
// The second return value reports whether a command was matched.
func (r *Registry) Dispatch(ctx context.Context, text, sessionKey string) (*Result, bool, error) {
	name, args, ok := Parse(text)
	if !ok {
		return nil, false, nil
	}
	cmd, found := r.Find(name)
	if !found {
		return nil, false, nil
	}

	inv := &Invocation{
		Command:    cmd,
		Name:       name,
		Args:       args,
		RawText:    text,
		SessionKey: sessionKey,
	}
	res, err := cmd.Handler(ctx, inv)
	if err != nil {
		r.logger.Warn("command failed", "command", cmd.Name, "error", err)
		return nil, true, err
	}
	return res, true, nil
}
