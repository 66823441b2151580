package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry trace.Tracer to emit one span per Observe
// call, mirroring graph/emit.OTelEmitter's span-per-event convention but
// scoped to the engine's hot path rather than to arbitrary events.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps tracer (e.g. otel.Tracer("libcallsandbox/engine")).
func NewTracer(tracer trace.Tracer) *Tracer {
	return &Tracer{tracer: tracer}
}

// observeSpan starts a span for a single Observe call against pid.
func (t *Tracer) observeSpan(ctx context.Context, pid uint32, id int32) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "engine.Observe")
	span.SetAttributes(
		attribute.Int64("pid", int64(pid)),
		attribute.Int64("observed_id", int64(id)),
	)
	return ctx, span
}

// endObserveSpan records the resulting frontier size and violation outcome
// on span, then ends it.
func endObserveSpan(span trace.Span, frontierSize int, violated bool) {
	span.SetAttributes(attribute.Int("frontier_size", frontierSize))
	if violated {
		span.SetStatus(codes.Error, "policy violation")
	}
	span.End()
}

// loadSpan starts a span for a single Load call against pid.
func (t *Tracer) loadSpan(ctx context.Context, pid uint32) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "engine.Load")
	span.SetAttributes(attribute.Int64("pid", int64(pid)))
	return ctx, span
}
