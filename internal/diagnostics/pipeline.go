// Package diagnostics provides the runtime diagnostics pipeline: a bounded
// ring of structured events plus rolling counters consumed by observability
// surfaces such as the built-in /status command.
package diagnostics

import (
	"sync"
	"time"
)

// DefaultEventLimit bounds the event ring.
const DefaultEventLimit = 500

// Subsystem names used by event emitters.
const (
	SubsystemRuntime  = "runtime"
	SubsystemChannel  = "channel"
	SubsystemSecurity = "security"
)

// Event names recorded by the engine.
const (
	EventRunStarted         = "run.started"
	EventRunCompleted       = "run.completed"
	EventRunFailed          = "run.failed"
	EventModelCallStarted   = "model.call.started"
	EventModelCallCompleted = "model.call.completed"
	EventModelCallFailed    = "model.call.failed"

	EventInboundReceived  = "inbound.received"
	EventSessionResolved  = "routing.session_resolved"
	EventSkillInvoked     = "skill.invoked"
	EventOutboundSent     = "outbound.sent"
	EventOutboundFailed   = "outbound.failed"
	EventOutboundSkipped  = "outbound.skipped"
	EventOverflowDropped  = "overflow.dropped"
	EventAuditCompleted   = "audit.completed"
	EventAuditFinding     = "audit.finding"
)

// Event is a single structured diagnostic record.
type Event struct {
	Subsystem  string            `json:"subsystem"`
	Name       string            `json:"name"`
	RunID      string            `json:"runID,omitempty"`
	SessionKey string            `json:"sessionKey,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ProviderUsage aggregates model-call counters for one provider.
type ProviderUsage struct {
	Calls        int64 `json:"calls"`
	Failures     int64 `json:"failures"`
	AvgLatencyMs int64 `json:"avgLatencyMs"`

	totalLatencyMs int64
	latencySamples int64
}

// ChannelUsage aggregates delivery counters for one channel.
type ChannelUsage struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// UsageSnapshot is a value copy of the rolling counters.
type UsageSnapshot struct {
	RunsStarted   int64 `json:"runsStarted"`
	RunsCompleted int64 `json:"runsCompleted"`
	RunsFailed    int64 `json:"runsFailed"`
	RunsTimedOut  int64 `json:"runsTimedOut"`

	ModelCalls    int64 `json:"modelCalls"`
	ModelFailures int64 `json:"modelFailures"`

	SkillInvocations int64 `json:"skillInvocations"`

	DeliveriesSent   int64 `json:"deliveriesSent"`
	DeliveriesFailed int64 `json:"deliveriesFailed"`

	ByProvider map[string]ProviderUsage `json:"byProvider,omitempty"`
	BySkill    map[string]int64         `json:"bySkill,omitempty"`
	ByChannel  map[string]ChannelUsage  `json:"byChannel,omitempty"`
}

// Pipeline owns the event ring and counters. All mutation is serialized
// behind a mutex; snapshots and recent events are returned as value copies.
type Pipeline struct {
	mu     sync.Mutex
	limit  int
	events []Event
	usage  UsageSnapshot
	prom   *promExporter
}

// NewPipeline creates a pipeline with the given event limit.
// Non-positive limits fall back to DefaultEventLimit.
func NewPipeline(limit int) *Pipeline {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return &Pipeline{
		limit:  limit,
		events: make([]Event, 0, limit),
		usage:  emptyUsage(),
	}
}

func emptyUsage() UsageSnapshot {
	return UsageSnapshot{
		ByProvider: map[string]ProviderUsage{},
		BySkill:    map[string]int64{},
		ByChannel:  map[string]ChannelUsage{},
	}
}

// Record appends an event, trimming the ring from the front when over
// capacity, then updates the aggregates keyed by (subsystem, name).
func (p *Pipeline) Record(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, ev)
	if over := len(p.events) - p.limit; over > 0 {
		p.events = append(p.events[:0:0], p.events[over:]...)
	}
	p.aggregate(ev)
	if p.prom != nil {
		p.prom.observe(ev)
	}
}

// Sink returns a callable that records into this pipeline.
func (p *Pipeline) Sink() func(Event) {
	return p.Record
}

// RecentEvents returns up to limit most-recent events, oldest first.
// A non-positive limit returns all retained events.
func (p *Pipeline) RecentEvents(limit int) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, limit)
	copy(out, p.events[n-limit:])
	return out
}

// UsageSnapshot returns a value copy of the current aggregates.
func (p *Pipeline) UsageSnapshot() UsageSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.usage
	snap.ByProvider = make(map[string]ProviderUsage, len(p.usage.ByProvider))
	for id, u := range p.usage.ByProvider {
		u.AvgLatencyMs = u.totalLatencyMs / max64(u.latencySamples, 1)
		snap.ByProvider[id] = u
	}
	snap.BySkill = make(map[string]int64, len(p.usage.BySkill))
	for id, n := range p.usage.BySkill {
		snap.BySkill[id] = n
	}
	snap.ByChannel = make(map[string]ChannelUsage, len(p.usage.ByChannel))
	for id, u := range p.usage.ByChannel {
		snap.ByChannel[id] = u
	}
	return snap
}

// Reset clears the ring and zeroes all counters.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = p.events[:0]
	p.usage = emptyUsage()
}

func (p *Pipeline) aggregate(ev Event) {
	switch ev.Subsystem {
	case SubsystemRuntime:
		switch ev.Name {
		case EventRunStarted:
			p.usage.RunsStarted++
		case EventRunCompleted:
			p.usage.RunsCompleted++
		case EventRunFailed:
			p.usage.RunsFailed++
			if ev.Metadata["timedOut"] == "true" {
				p.usage.RunsTimedOut++
			}
		case EventModelCallStarted:
			p.usage.ModelCalls++
		case EventModelCallCompleted:
			u := p.usage.ByProvider[ev.Metadata["providerID"]]
			u.Calls++
			if ms, ok := parseMillis(ev.Metadata["latencyMs"]); ok {
				u.totalLatencyMs += ms
				u.latencySamples++
			}
			p.usage.ByProvider[ev.Metadata["providerID"]] = u
		case EventModelCallFailed:
			p.usage.ModelFailures++
			u := p.usage.ByProvider[ev.Metadata["providerID"]]
			u.Failures++
			p.usage.ByProvider[ev.Metadata["providerID"]] = u
		}
	case SubsystemChannel:
		switch ev.Name {
		case EventSkillInvoked:
			p.usage.SkillInvocations++
			p.usage.BySkill[ev.Metadata["skillName"]]++
		case EventOutboundSent:
			p.usage.DeliveriesSent++
			u := p.usage.ByChannel[ev.Metadata["channel"]]
			u.Sent++
			p.usage.ByChannel[ev.Metadata["channel"]] = u
		case EventOutboundFailed:
			p.usage.DeliveriesFailed++
			u := p.usage.ByChannel[ev.Metadata["channel"]]
			u.Failed++
			p.usage.ByChannel[ev.Metadata["channel"]] = u
		}
	}
}

func parseMillis(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var ms int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		ms = ms*10 + int64(r-'0')
	}
	return ms, true
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
