package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promExporter mirrors pipeline counters into Prometheus metrics.
type promExporter struct {
	runs       *prometheus.CounterVec
	modelCalls *prometheus.CounterVec
	skills     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

// AttachPrometheus registers counter vectors on reg and mirrors every
// subsequently recorded event into them. Call at most once per pipeline.
func (p *Pipeline) AttachPrometheus(reg prometheus.Registerer) error {
	exp := &promExporter{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Name:      "runs_total",
			Help:      "Agent runs by terminal status.",
		}, []string{"status"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Name:      "model_calls_total",
			Help:      "Model calls by provider and status.",
		}, []string{"provider", "status"}),
		skills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Name:      "skill_invocations_total",
			Help:      "Skill invocations by skill name.",
		}, []string{"skill"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openclaw",
			Name:      "channel_deliveries_total",
			Help:      "Outbound deliveries by channel and status.",
		}, []string{"channel", "status"}),
	}
	for _, c := range []prometheus.Collector{exp.runs, exp.modelCalls, exp.skills, exp.deliveries} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.prom = exp
	p.mu.Unlock()
	return nil
}

func (e *promExporter) observe(ev Event) {
	switch ev.Subsystem {
	case SubsystemRuntime:
		switch ev.Name {
		case EventRunStarted:
			e.runs.WithLabelValues("started").Inc()
		case EventRunCompleted:
			e.runs.WithLabelValues("completed").Inc()
		case EventRunFailed:
			if ev.Metadata["timedOut"] == "true" {
				e.runs.WithLabelValues("timed_out").Inc()
			} else {
				e.runs.WithLabelValues("failed").Inc()
			}
		case EventModelCallStarted:
			e.modelCalls.WithLabelValues(ev.Metadata["providerID"], "started").Inc()
		case EventModelCallCompleted:
			e.modelCalls.WithLabelValues(ev.Metadata["providerID"], "completed").Inc()
		case EventModelCallFailed:
			e.modelCalls.WithLabelValues(ev.Metadata["providerID"], "failed").Inc()
		}
	case SubsystemChannel:
		switch ev.Name {
		case EventSkillInvoked:
			e.skills.WithLabelValues(ev.Metadata["skillName"]).Inc()
		case EventOutboundSent:
			e.deliveries.WithLabelValues(ev.Metadata["channel"], "sent").Inc()
		case EventOutboundFailed:
			e.deliveries.WithLabelValues(ev.Metadata["channel"], "failed").Inc()
		}
	}
}
