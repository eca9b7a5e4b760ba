package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/herald"

// Tracer provides OpenTelemetry tracing for dispatch attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from tp, or from the global provider when tp
// is nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartDispatchSpan starts a span for one dispatch attempt.
func (t *Tracer) StartDispatchSpan(ctx context.Context, webhookID, eventID, eventType string, attempt int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "herald.dispatch",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("herald.webhook_id", webhookID),
			attribute.String("herald.event_id", eventID),
			attribute.String("herald.event_type", eventType),
			attribute.Int("herald.attempt", attempt),
		),
	)
}

// EndDispatchSpan records the outcome and ends the span.
func (t *Tracer) EndDispatchSpan(span trace.Span, status string, statusCode int, latencyMs int64, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.String("herald.status", status),
		attribute.Int("http.response.status_code", statusCode),
		attribute.Int64("herald.latency_ms", latencyMs),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
