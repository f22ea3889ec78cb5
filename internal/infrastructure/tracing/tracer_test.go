package tracing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyid/tracekit/internal/shared/id"
)

// recordProcessor captures finished spans for assertions.
type recordProcessor struct {
	mu    sync.Mutex
	spans []SpanData
}

func (r *recordProcessor) OnEnd(data SpanData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, data)
}

func (r *recordProcessor) ForceFlush(context.Context) error { return nil }
func (r *recordProcessor) Shutdown(context.Context) error   { return nil }

func (r *recordProcessor) Spans() []SpanData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SpanData, len(r.spans))
	copy(out, r.spans)
	return out
}

func TestStartRootSpan(t *testing.T) {
	tracer, _ := newTestTracer()

	ctx, span := tracer.Start(context.Background(), "root", WithKind(KindServer))

	sc := span.Context()
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsSampled())
	_, hasParent := sc.ParentSpanID()
	assert.False(t, hasParent)
	assert.Equal(t, KindServer, span.Kind())
	assert.Same(t, span, SpanFromContext(ctx))
}

func TestStartChildSpan(t *testing.T) {
	tracer, _ := newTestTracer()

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := tracer.Start(ctx, "child")

	assert.Equal(t, parent.Context().TraceID(), child.Context().TraceID())
	assert.NotEqual(t, parent.Context().SpanID(), child.Context().SpanID())

	parentID, hasParent := child.Context().ParentSpanID()
	require.True(t, hasParent)
	assert.Equal(t, parent.Context().SpanID(), parentID)
}

func TestStartWithRemoteParent(t *testing.T) {
	tracer, _ := newTestTracer()

	remote := NewSpanContext(id.NewTraceID(), id.NewSpanID(), true)
	_, span := tracer.Start(context.Background(), "server", WithRemoteParent(remote))

	assert.Equal(t, remote.TraceID(), span.Context().TraceID())
	parentID, hasParent := span.Context().ParentSpanID()
	require.True(t, hasParent)
	assert.Equal(t, remote.SpanID(), parentID)
}

func TestRemoteParentSamplingInherited(t *testing.T) {
	// Local sampler says yes, but the inbound decision wins
	tracer, proc := newTestTracer(WithSampler(AlwaysOn()))

	remote := NewSpanContext(id.NewTraceID(), id.NewSpanID(), false)
	_, span := tracer.Start(context.Background(), "server", WithRemoteParent(remote))
	assert.False(t, span.IsSampled())

	span.End()
	assert.Empty(t, proc.Spans())
}

func TestInvalidRemoteParentStartsNewRoot(t *testing.T) {
	tracer, _ := newTestTracer()

	_, span := tracer.Start(context.Background(), "server", WithRemoteParent(SpanContext{}))
	_, hasParent := span.Context().ParentSpanID()
	assert.False(t, hasParent)
	assert.True(t, span.Context().IsValid())
}

func TestParentBindingRestoredAfterChildScope(t *testing.T) {
	tracer, _ := newTestTracer()

	ctx, parent := tracer.Start(context.Background(), "parent")
	childCtx, child := tracer.Start(ctx, "child")
	child.End()

	// The parent context was never rebound; work continuing on ctx still
	// parents under the original span.
	assert.Same(t, parent, SpanFromContext(ctx))
	assert.Same(t, child, SpanFromContext(childCtx))

	_, grandchild := tracer.Start(ctx, "second-child")
	parentID, _ := grandchild.Context().ParentSpanID()
	assert.Equal(t, parent.Context().SpanID(), parentID)
}

// TestConcurrentRequestsDoNotShareBindings drives many interleaved logical
// requests and asserts no cross-contamination of parent ids: every child's
// parent is the span bound to its own context, never another request's.
func TestConcurrentRequestsDoNotShareBindings(t *testing.T) {
	tracer, proc := newTestTracer()

	const requests = 1000

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, root := tracer.Start(context.Background(), "request", WithKind(KindServer))
			childCtx, child := tracer.Start(ctx, "handler")
			_, grandchild := tracer.Start(childCtx, "query")

			assert.Equal(t, root.Context().TraceID(), child.Context().TraceID())
			assert.Equal(t, root.Context().TraceID(), grandchild.Context().TraceID())

			childParent, _ := child.Context().ParentSpanID()
			assert.Equal(t, root.Context().SpanID(), childParent)

			grandchildParent, _ := grandchild.Context().ParentSpanID()
			assert.Equal(t, child.Context().SpanID(), grandchildParent)

			grandchild.End()
			child.End()
			root.End()
		}()
	}
	wg.Wait()

	spans := proc.Spans()
	require.Len(t, spans, requests*3)

	// Rebuild the forest: every trace must contain exactly its own three
	// spans, linked root -> handler -> query.
	byTrace := make(map[id.TraceID][]SpanData)
	for _, data := range spans {
		byTrace[data.TraceID] = append(byTrace[data.TraceID], data)
	}
	require.Len(t, byTrace, requests)

	for traceID, members := range byTrace {
		require.Len(t, members, 3, "trace %s has foreign or missing spans", traceID)

		byName := make(map[string]SpanData, 3)
		for _, m := range members {
			byName[m.Name] = m
		}

		root := byName["request"]
		handler := byName["handler"]
		query := byName["query"]

		assert.False(t, root.HasParent)
		assert.Equal(t, root.SpanID, handler.ParentSpanID)
		assert.Equal(t, handler.SpanID, query.ParentSpanID)
	}
}

func TestInstrumentSuccess(t *testing.T) {
	tracer, proc := newTestTracer()

	err := Instrument(context.Background(), tracer, "work", func(ctx context.Context) error {
		assert.NotNil(t, SpanFromContext(ctx))
		return nil
	})
	require.NoError(t, err)

	require.Len(t, proc.Spans(), 1)
	data := proc.Spans()[0]
	assert.Equal(t, "work", data.Name)
	assert.Equal(t, StatusOk, data.Status.Code)
}

func TestInstrumentError(t *testing.T) {
	tracer, proc := newTestTracer()

	wantErr := errors.New("work failed")
	err := Instrument(context.Background(), tracer, "work", func(context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	require.Len(t, proc.Spans(), 1)
	data := proc.Spans()[0]
	assert.Equal(t, StatusError, data.Status.Code)
	assert.Equal(t, "work failed", data.Status.Message)
}

func TestInstrumentPanicStillClosesSpan(t *testing.T) {
	tracer, proc := newTestTracer()

	assert.Panics(t, func() {
		_ = Instrument(context.Background(), tracer, "work", func(context.Context) error {
			panic("boom")
		})
	})

	require.Len(t, proc.Spans(), 1)
	data := proc.Spans()[0]
	assert.Equal(t, StatusError, data.Status.Code)
	assert.Contains(t, data.Status.Message, "boom")
}

func TestSpanDataFields(t *testing.T) {
	tracer, proc := newTestTracer()

	_, span := tracer.Start(context.Background(), "op", WithKind(KindClient))
	span.End()

	require.Len(t, proc.Spans(), 1)
	data := proc.Spans()[0]
	assert.Equal(t, "test", data.Service)
	assert.Equal(t, KindClient, data.Kind)
	assert.False(t, data.StartTime.IsZero())
	assert.False(t, data.EndTime.Before(data.StartTime))
}
