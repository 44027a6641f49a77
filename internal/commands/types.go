// Package commands provides slash command detection and the built-in
// operational commands. Built-ins answer directly from local state and
// never invoke a model provider.
package commands

import "context"

// Command is a registered slash command.
type Command struct {
	// Name is the command name without the leading slash.
	Name string `json:"name"`

	// Aliases are alternative names for the command.
	Aliases []string `json:"aliases,omitempty"`

	// Description is shown in /help output.
	Description string `json:"description,omitempty"`

	// Usage shows how to invoke the command.
	Usage string `json:"usage,omitempty"`

	// Hidden hides the command from help listings.
	Hidden bool `json:"hidden,omitempty"`

	// Handler executes the command.
	Handler Handler `json:"-"`
}

// Handler processes a command invocation.
type Handler func(ctx context.Context, inv *Invocation) (*Result, error)

// Invocation is a parsed command plus its call site.
type Invocation struct {
	// Command is the matched definition.
	Command *Command

	// Name is the name or alias actually used.
	Name string

	// Args is the text after the command name.
	Args string

	// RawText is the original message text.
	RawText string

	// SessionKey identifies the conversation.
	SessionKey string
}

// Result is the reply produced by a command.
type Result struct {
	Text string `json:"text,omitempty"`
}
