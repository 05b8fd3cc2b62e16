package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SpanObserver attaches events to the recording span carried by ctx.
// Events below MinLevel and events on non-recording spans are skipped.
type SpanObserver struct {
	MinLevel Level
}

func (o SpanObserver) OnEvent(ctx context.Context, event Event) {
	if event.Level < o.MinLevel {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(event.Data)+3)
	attrs = append(attrs,
		attribute.String("level", event.Level.String()),
		attribute.String("source", event.Source),
	)
	if event.ContextID != "" {
		attrs = append(attrs, attribute.String("context_id", event.ContextID))
	}
	for k, v := range event.Data {
		attrs = append(attrs, spanAttribute(k, v))
	}

	if event.Err != nil {
		span.RecordError(event.Err, trace.WithAttributes(attrs...), trace.WithTimestamp(event.Timestamp))
		return
	}
	span.AddEvent(string(event.Type), trace.WithAttributes(attrs...), trace.WithTimestamp(event.Timestamp))
}

func spanAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
