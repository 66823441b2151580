package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns every event into a zero-duration OpenTelemetry span,
// grounded on graph/emit.OTelEmitter's span-per-event convention: span
// name is event.Msg, attributes are pid/observedID/meta, and a violation
// sets the span status to error.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter wraps tracer (e.g. otel.Tracer("libcallsandbox")).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit starts and immediately ends a span recording event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.Int64("pid", int64(event.PID)),
		attribute.Int64("observed_id", int64(event.ObservedID)),
	)
	for k, v := range event.Meta {
		span.SetAttributes(attribute.String("meta."+k, toAttrString(v)))
	}
	if event.Msg == "violation" {
		span.SetStatus(codes.Error, "policy violation")
	}
}

func toAttrString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return jsonStringify(t)
	}
}

// Flush is a no-op: each span already ended synchronously in Emit.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	return nil
}
