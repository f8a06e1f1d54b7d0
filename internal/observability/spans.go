package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for agentcore spans.
var (
	AttrMessageID = attribute.Key("agentcore.message.id")
	AttrChatID    = attribute.Key("agentcore.chat.id")
	AttrEventType = attribute.Key("agentcore.event.type")
	AttrWatcherID = attribute.Key("agentcore.watcher.id")
	AttrSinceSeq  = attribute.Key("agentcore.since_seq")
)

// StartSpan starts an internal span with common attributes, used around
// the executor's run of one message.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartServerSpan starts a span for an inbound request, used by the SSE and
// replay HTTP handlers.
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}
