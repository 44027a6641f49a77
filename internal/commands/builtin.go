package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/internal/diagnostics"
)

// StatusSources feeds the built-in commands. Either func may be nil,
// in which case the matching section is omitted.
type StatusSources struct {
	// Usage returns the rolling diagnostics counters.
	Usage func() diagnostics.UsageSnapshot

	// Health returns per-channel adapter health.
	Health func() []channels.HealthSnapshot

	// Version is the build version shown in /status.
	Version string

	// StartedAt anchors the uptime shown in /status.
	StartedAt time.Time
}

// RegisterBuiltins adds /health, /status, and /help to the registry.
func RegisterBuiltins(r *Registry, src StatusSources) error {
	builtins := []*Command{
		{
			Name:        "health",
			Description: "Show per-channel adapter health",
			Usage:       "/health",
			Handler:     healthHandler(src),
		},
		{
			Name:        "status",
			Aliases:     []string{"stats"},
			Description: "Show runtime counters and uptime",
			Usage:       "/status",
			Handler:     statusHandler(src),
		},
		{
			Name:        "help",
			Aliases:     []string{"commands"},
			Description: "List available commands",
			Usage:       "/help",
			Handler:     helpHandler(r),
		},
	}
	for _, cmd := range builtins {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func healthHandler(src StatusSources) Handler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if src.Health == nil {
			return &Result{Text: "No channel health data available."}, nil
		}
		snaps := src.Health()
		if len(snaps) == 0 {
			return &Result{Text: "No channels registered."}, nil
		}

		var b strings.Builder
		b.WriteString("Channel health:\n")
		for _, s := range snaps {
			fmt.Fprintf(&b, "- %s: %s", s.Channel, s.State)
			if s.ConsecutiveFailures > 0 {
				fmt.Fprintf(&b, " (%d consecutive failures", s.ConsecutiveFailures)
				if s.LastError != "" {
					fmt.Fprintf(&b, ", last: %s", s.LastError)
				}
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
		return &Result{Text: strings.TrimRight(b.String(), "\n")}, nil
	}
}

func statusHandler(src StatusSources) Handler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		var b strings.Builder
		b.WriteString("Status:\n")
		if src.Version != "" {
			fmt.Fprintf(&b, "- version: %s\n", src.Version)
		}
		if !src.StartedAt.IsZero() {
			fmt.Fprintf(&b, "- uptime: %s\n", time.Since(src.StartedAt).Round(time.Second))
		}
		if src.Usage != nil {
			u := src.Usage()
			fmt.Fprintf(&b, "- runs: %d started, %d completed, %d failed (%d timed out)\n",
				u.RunsStarted, u.RunsCompleted, u.RunsFailed, u.RunsTimedOut)
			fmt.Fprintf(&b, "- model calls: %d (%d failed)\n", u.ModelCalls, u.ModelFailures)
			fmt.Fprintf(&b, "- skill invocations: %d\n", u.SkillInvocations)
			fmt.Fprintf(&b, "- deliveries: %d sent, %d failed\n", u.DeliveriesSent, u.DeliveriesFailed)

			if len(u.ByProvider) > 0 {
				providers := make([]string, 0, len(u.ByProvider))
				for id := range u.ByProvider {
					providers = append(providers, id)
				}
				sort.Strings(providers)
				for _, id := range providers {
					p := u.ByProvider[id]
					fmt.Fprintf(&b, "- provider %s: %d calls, %d failures, avg %dms\n",
						id, p.Calls, p.Failures, p.AvgLatencyMs)
				}
			}
		}
		return &Result{Text: strings.TrimRight(b.String(), "\n")}, nil
	}
}

func helpHandler(r *Registry) Handler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		var b strings.Builder
		b.WriteString("Available commands:\n")
		for _, cmd := range r.All() {
			if cmd.Hidden {
				continue
			}
			fmt.Fprintf(&b, "- /%s", cmd.Name)
			if cmd.Description != "" {
				fmt.Fprintf(&b, ": %s", cmd.Description)
			}
			b.WriteString("\n")
		}
		return &Result{Text: strings.TrimRight(b.String(), "\n")}, nil
	}
}
