// Package autoreply orchestrates one inbound message end to end:
// session resolution, command dispatch, skill invocation, prompt
// assembly, the model run, and outbound delivery.
package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/openclaw/openclaw/internal/agent"
	"github.com/openclaw/openclaw/internal/channels"
	"github.com/openclaw/openclaw/internal/commands"
	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/internal/diagnostics"
	"github.com/openclaw/openclaw/internal/memory"
	"github.com/openclaw/openclaw/internal/sessions"
	"github.com/openclaw/openclaw/internal/skills"
	"github.com/openclaw/openclaw/pkg/models"
)

// Options wires the engine's collaborators. Memory, Skills, Commands,
// and BootstrapContext are optional; the rest are required.
type Options struct {
	Config    *config.Config
	Sessions  *sessions.Store
	Keys      *sessions.KeyResolver
	Registry  *channels.Registry
	Runtime   *agent.Runtime
	Diag      *diagnostics.Pipeline
	Memory    *memory.Store
	Skills    *skills.Engine
	Commands  *commands.Registry
	Logger    *slog.Logger

	// BootstrapContext returns the workspace bootstrap prompt block,
	// or "" when the workspace carries no context files.
	BootstrapContext func() string
}

// Engine turns inbound messages into replies.
type Engine struct {
	cfg       *config.Config
	sessions  *sessions.Store
	keys      *sessions.KeyResolver
	registry  *channels.Registry
	runtime   *agent.Runtime
	diag      *diagnostics.Pipeline
	memory    *memory.Store
	skills    *skills.Engine
	commands  *commands.Registry
	bootstrap func() string
	logger    *slog.Logger
}

// New builds an engine from Options.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil || opts.Sessions == nil || opts.Keys == nil ||
		opts.Registry == nil || opts.Runtime == nil {
		return nil, fmt.Errorf("autoreply: config, sessions, keys, registry, and runtime are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       opts.Config,
		sessions:  opts.Sessions,
		keys:      opts.Keys,
		registry:  opts.Registry,
		runtime:   opts.Runtime,
		diag:      opts.Diag,
		memory:    opts.Memory,
		skills:    opts.Skills,
		commands:  opts.Commands,
		bootstrap: opts.BootstrapContext,
		logger:    logger.With("component", "autoreply"),
	}, nil
}

// HandleInbound adapts Process to the channels.InboundHandler shape.
func (e *Engine) HandleInbound(ctx context.Context, msg models.InboundMessage) {
	if _, err := e.Process(ctx, msg); err != nil {
		e.logger.Warn("inbound processing failed", "channel", msg.Channel, "error", err)
	}
}

// Process runs the full reply pipeline for one inbound message and
// returns the outbound that was (or would have been) delivered.
func (e *Engine) Process(ctx context.Context, inbound models.InboundMessage) (models.OutboundMessage, error) {
	text := strings.TrimSpace(inbound.Text)
	if text == "" {
		e.emit(diagnostics.EventOutboundSkipped, "", map[string]string{
			"channel": string(inbound.Channel),
			"reason":  "empty",
		})
		return models.OutboundMessage{
			Channel:   inbound.Channel,
			AccountID: inbound.AccountID,
			PeerID:    inbound.PeerID,
		}, nil
	}

	e.emit(diagnostics.EventInboundReceived, "", map[string]string{
		"channel": string(inbound.Channel),
		"peerID":  inbound.PeerID,
	})

	route := inbound.RouteOf()
	sessionKey := e.keys.KeyFor(route, "")
	agentID := e.cfg.Agents.ResolvedAgentID(route)
	if _, err := e.sessions.ResolveOrCreate(sessionKey, agentID, &route); err != nil {
		return e.sendError(ctx, inbound, sessionKey, err)
	}
	e.emit(diagnostics.EventSessionResolved, sessionKey, map[string]string{
		"channel": string(inbound.Channel),
		"agentID": agentID,
	})

	// Built-in commands bypass memory and the model entirely.
	if e.commands != nil {
		if res, matched, err := e.commands.Dispatch(ctx, text, sessionKey); matched {
			if err != nil {
				return e.sendError(ctx, inbound, sessionKey, err)
			}
			return e.deliver(ctx, inbound, res.Text)
		}
	}

	// Memory context covers the conversation before this message.
	var memoryContext string
	if e.memory != nil {
		memoryContext = e.memory.FormattedContext(sessionKey, e.cfg.Memory.ContextLimit)
		if err := e.memory.AppendUserTurn(sessionKey, inbound); err != nil {
			return e.sendError(ctx, inbound, sessionKey, err)
		}
	}

	// Typing indicator runs until the reply is delivered or Process
	// returns, whichever is first.
	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	e.notifyTyping(typingCtx, inbound)

	skillSection, err := e.invokeSkill(ctx, sessionKey, text)
	if err != nil {
		return e.sendError(ctx, inbound, sessionKey, err)
	}

	prompt := e.assemblePrompt(memoryContext, skillSection, text)

	result, err := e.runtime.Run(ctx, agent.RunRequest{
		Prompt:     prompt,
		AgentID:    agentID,
		SessionKey: sessionKey,
	})
	if err != nil {
		return e.sendError(ctx, inbound, sessionKey, err)
	}

	reply := result.Text
	// A reply that parrots the prompt back carries no answer; treat it
	// as a bare acknowledgment unless a skill produced the content.
	if skillSection == "" && reply == prompt {
		reply = "OK"
	}

	if e.memory != nil {
		if err := e.memory.AppendAssistantTurn(sessionKey, inbound.Channel, reply); err != nil {
			e.logger.Warn("assistant turn not persisted", "sessionKey", sessionKey, "error", err)
		}
	}

	return e.deliver(ctx, inbound, reply)
}

// invokeSkill attempts skill invocation and returns the prompt section
// carrying its output, "" when no skill ran. Explicit match failures
// propagate; implicit ones are swallowed.
func (e *Engine) invokeSkill(ctx context.Context, sessionKey, text string) (string, error) {
	if e.skills == nil {
		return "", nil
	}
	match := e.skills.MatchMessage(text)
	if match == nil {
		return "", nil
	}

	res := e.skills.Invoke(ctx, match)
	e.emit(diagnostics.EventSkillInvoked, sessionKey, map[string]string{
		"skillName":  match.Definition.Name,
		"durationMs": strconv.FormatInt(res.Duration.Milliseconds(), 10),
		"executorID": res.ExecutorID,
		"explicit":   strconv.FormatBool(match.Explicit),
	})
	if res.Err != nil {
		if match.Explicit {
			return "", res.Err
		}
		e.logger.Debug("implicit skill match failed",
			"skill", match.Definition.Name, "error", res.Err)
		return "", nil
	}
	return fmt.Sprintf("## Skill Output (%s)\n\n%s", res.SkillName, res.Output), nil
}

// assemblePrompt concatenates the present sections, blank-line
// separated, ending with the raw user text.
func (e *Engine) assemblePrompt(memoryContext, skillSection, text string) string {
	var sections []string
	if e.bootstrap != nil {
		if block := e.bootstrap(); block != "" {
			sections = append(sections, block)
		}
	}
	if e.skills != nil {
		if snapshot := e.skills.Registry().PromptSnapshot(); snapshot != "" {
			sections = append(sections, snapshot)
		}
	}
	if memoryContext != "" {
		sections = append(sections, memoryContext)
	}
	if skillSection != "" {
		sections = append(sections, skillSection)
	}
	sections = append(sections, "## New User Message\n\n"+text)
	return strings.Join(sections, "\n\n")
}

// notifyTyping shows a typing indicator on adapters that support it.
func (e *Engine) notifyTyping(ctx context.Context, inbound models.InboundMessage) {
	adapter, ok := e.registry.Adapter(inbound.Channel)
	if !ok {
		return
	}
	notifier, ok := adapter.(channels.TypingNotifier)
	if !ok {
		return
	}
	if err := notifier.NotifyTyping(ctx, models.OutboundMessage{
		Channel:   inbound.Channel,
		AccountID: inbound.AccountID,
		PeerID:    inbound.PeerID,
	}); err != nil {
		e.logger.Debug("typing notify failed", "channel", inbound.Channel, "error", err)
	}
}

// deliver sends the reply through the channel registry, which emits
// the outbound delivery events.
func (e *Engine) deliver(ctx context.Context, inbound models.InboundMessage, text string) (models.OutboundMessage, error) {
	outbound := models.OutboundMessage{
		Channel:   inbound.Channel,
		AccountID: inbound.AccountID,
		PeerID:    inbound.PeerID,
		Text:      text,
		ReplyToID: inbound.MessageID,
	}
	if err := e.registry.Send(ctx, outbound); err != nil {
		return outbound, err
	}
	return outbound, nil
}

// sendError converts a pipeline failure into a system error reply on
// the same channel.
func (e *Engine) sendError(ctx context.Context, inbound models.InboundMessage, sessionKey string, cause error) (models.OutboundMessage, error) {
	e.logger.Warn("reply pipeline failed", "sessionKey", sessionKey, "error", cause)
	outbound, sendErr := e.deliver(ctx, inbound, "Error: "+cause.Error())
	if sendErr != nil {
		return outbound, fmt.Errorf("%w (error reply delivery also failed: %v)", cause, sendErr)
	}
	return outbound, cause
}

func (e *Engine) emit(name, sessionKey string, metadata map[string]string) {
	if e.diag == nil {
		return
	}
	e.diag.Record(diagnostics.Event{
		Subsystem:  diagnostics.SubsystemChannel,
		Name:       name,
		SessionKey: sessionKey,
		Metadata:   metadata,
	})
}
