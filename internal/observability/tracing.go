package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/haasonsaas/ai-agent"

// Tracer returns the engine's tracer. With no SDK installed by the host
// process this is otel's no-op implementation, so span calls in the hot
// path are free.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartTurn opens a span for one agent turn.
func StartTurn(ctx context.Context, turn int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.Int("agent.turn_number", turn),
	))
}

// StartToolCall opens a span for one tool invocation.
func StartToolCall(ctx context.Context, tool string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.tool_call", trace.WithAttributes(
		attribute.String("tool.name", tool),
	))
}

// StartCompletion opens a span for one streamed LLM completion.
func StartCompletion(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.completion", trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	))
}
