package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/KamdynS/promptline"

// Span names used by the provider adapters and the agent loop.
const (
	SpanLLMComplete = "llm.complete"
	SpanLLMStream   = "llm.stream"
	SpanEmbeddings  = "llm.embeddings"
	SpanAgentTurn   = "agent.turn"
	SpanToolInvoke  = "tool.invoke"
)

// Tracer returns the library tracer from the global provider. It is a no-op
// until the application installs a provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span tagged with provider and model.
func StartSpan(ctx context.Context, name, provider, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	))
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
