// Package observability carries the engine's metrics and tracing surface.
// Both are optional: a nil *Metrics and the default no-op otel tracer cost
// nothing, so library users who don't run a collector pay nothing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the engine's Prometheus collectors.
type Metrics struct {
	// TurnCounter counts agent turns by terminal outcome.
	// Labels: outcome (completed|error)
	TurnCounter *prometheus.CounterVec

	// LLMRequestDuration measures one streamed completion's latency.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens by direction.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolInvocations counts tool calls by how the pipeline resolved them.
	// Labels: tool, decision (executed|rejected|user_rejected|invalid|error)
	ToolInvocations *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// Compactions counts history compactions.
	// Labels: outcome (replaced|skipped|failed)
	Compactions *prometheus.CounterVec

	// LoopBreaks counts loop-detector triggers.
	LoopBreaks prometheus.Counter
}

// NewMetrics registers the engine's collectors on reg; a nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_turns_total",
			Help: "Agent turns by terminal outcome.",
		}, []string{"outcome"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_llm_request_duration_seconds",
			Help:    "Latency of one streamed completion.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_llm_tokens_total",
			Help: "Token consumption by direction.",
		}, []string{"provider", "model", "type"}),
		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_tool_invocations_total",
			Help: "Tool calls by pipeline decision.",
		}, []string{"tool", "decision"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_tool_duration_seconds",
			Help:    "Tool execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		Compactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_compactions_total",
			Help: "History compactions by outcome.",
		}, []string{"outcome"}),
		LoopBreaks: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_loop_breaks_total",
			Help: "Loop-detector triggers.",
		}),
	}
}
