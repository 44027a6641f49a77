package commands

import "strings"

// Parse splits a control message of the form "/name args" into its
// command name and arguments. Only messages that start with the slash
// prefix count; a bare "/" or "/ text" is not a command.
func Parse(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	body := text[1:]
	if body == "" {
		return "", "", false
	}

	name = body
	if idx := strings.IndexAny(body, " \t"); idx >= 0 {
		name = body[:idx]
		args = strings.TrimSpace(body[idx+1:])
	}
	if name == "" || !isCommandName(name) {
		return "", "", false
	}
	return strings.ToLower(name), args, true
}

// isCommandName accepts a letter followed by letters, digits, hyphens,
// or underscores.
func isCommandName(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '_'):
		default:
			return false
		}
	}
	return true
}
