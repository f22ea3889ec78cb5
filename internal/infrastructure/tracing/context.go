package tracing

import (
	"context"

	"github.com/tinyid/tracekit/internal/shared/id"
)

// SpanContext carries the identifiers that cross process boundaries: the
// trace id, the span id, the parent span id, and the sampling decision.
// It is immutable once constructed.
type SpanContext struct {
	traceID      id.TraceID
	spanID       id.SpanID
	parentSpanID id.SpanID
	sampled      bool
	remote       bool
}

// NewSpanContext constructs a span context for a remote parent, as extracted
// from wire headers. The parent span id is unknown on the receiving side.
func NewSpanContext(traceID id.TraceID, spanID id.SpanID, sampled bool) SpanContext {
	return SpanContext{
		traceID: traceID,
		spanID:  spanID,
		sampled: sampled,
		remote:  true,
	}
}

// TraceID returns the 128-bit trace identifier.
func (sc SpanContext) TraceID() id.TraceID { return sc.traceID }

// SpanID returns the 64-bit span identifier.
func (sc SpanContext) SpanID() id.SpanID { return sc.spanID }

// ParentSpanID returns the parent span id and whether one exists.
// Root spans and remote contexts have no parent on this side.
func (sc SpanContext) ParentSpanID() (id.SpanID, bool) {
	return sc.parentSpanID, sc.parentSpanID.IsValid()
}

// IsSampled reports whether spans in this trace are recorded for export.
func (sc SpanContext) IsSampled() bool { return sc.sampled }

// IsRemote reports whether the context was extracted from wire headers.
func (sc SpanContext) IsRemote() bool { return sc.remote }

// IsValid reports whether both identifiers are non-zero.
func (sc SpanContext) IsValid() bool {
	return sc.traceID.IsValid() && sc.spanID.IsValid()
}

// childOf derives a new context under parent: same trace id, fresh span id,
// inherited sampling decision. The decision is never re-made downstream so a
// trace is either fully recorded or fully absent.
func childOf(parent SpanContext, spanID id.SpanID) SpanContext {
	return SpanContext{
		traceID:      parent.traceID,
		spanID:       spanID,
		parentSpanID: parent.spanID,
		sampled:      parent.sampled,
	}
}

// rootContext builds a fresh root context with the given sampling decision.
func rootContext(traceID id.TraceID, spanID id.SpanID, sampled bool) SpanContext {
	return SpanContext{
		traceID: traceID,
		spanID:  spanID,
		sampled: sampled,
	}
}

// Context key for the active span binding. The binding is scoped to one
// logical execution context via context.Context inheritance: child tasks
// spawned with the request's context see the same span, sibling requests
// never share state. A process-wide current-span variable would let
// concurrent requests corrupt each other's parent/child view.
type contextKey struct{}

var activeSpanKey contextKey

// ContextWithSpan binds span as the current span of ctx. The returned
// context acts as the binding guard: when it goes out of scope the previous
// binding (the parent span) is visible again.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, activeSpanKey, span)
}

// SpanFromContext returns the current span bound to ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(activeSpanKey).(*Span)
	return span
}

// SpanContextFromContext returns the span context of the current span.
func SpanContextFromContext(ctx context.Context) (SpanContext, bool) {
	if span := SpanFromContext(ctx); span != nil {
		return span.Context(), true
	}
	return SpanContext{}, false
}
