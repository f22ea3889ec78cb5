package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyid/tracekit/internal/infrastructure/monitoring"
	"github.com/tinyid/tracekit/internal/infrastructure/tracing"
	"github.com/tinyid/tracekit/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Shared across tests: prometheus collectors register globally once.
var testMetrics = monitoring.NewMetrics()

type spanRecorder struct {
	mu    sync.Mutex
	spans []tracing.SpanData
}

func (r *spanRecorder) OnEnd(data tracing.SpanData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, data)
}

func (r *spanRecorder) ForceFlush(context.Context) error { return nil }
func (r *spanRecorder) Shutdown(context.Context) error   { return nil }

func (r *spanRecorder) Spans() []tracing.SpanData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tracing.SpanData, len(r.spans))
	copy(out, r.spans)
	return out
}

// newDemoService stands up the demo routes behind the tracing middleware on
// a live listener, with the remote greeting route calling back into itself.
func newDemoService(rec *spanRecorder) *httptest.Server {
	tracer := tracing.New("tinyid", logging.NewNop(), tracing.WithProcessor(rec))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))

	server := httptest.NewServer(router)

	handler := NewHandler("tinyid", tracer, logging.NewNop(), testMetrics, server.URL)
	handler.Register(router)

	return server
}

func TestHelloRendersGreeting(t *testing.T) {
	rec := &spanRecorder{}
	server := newDemoService(rec)
	defer server.Close()

	resp, err := http.Get(server.URL + "/hello/world")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Message string `json:"message"`
		TraceID string `json:"trace_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Hello, world!", body.Message)
	assert.NotEmpty(t, body.TraceID)
}

// TestGreetRemoteTracesOutboundCall drives the remote greeting route and
// asserts the outbound leg is traced: the server span, the client span the
// transport opens under it, the callee's server span, and the callee's
// nested render span all share one trace and link parent to child.
func TestGreetRemoteTracesOutboundCall(t *testing.T) {
	rec := &spanRecorder{}
	server := newDemoService(rec)
	defer server.Close()

	resp, err := http.Get(server.URL + "/greet-remote/world")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body struct {
		Message string `json:"message"`
		Via     string `json:"via"`
		TraceID string `json:"trace_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "Hello, world!", body.Message)
	assert.Equal(t, "remote", body.Via)

	// Spans arrive in end order: the callee's render span, the callee's
	// server span, the caller's client span, the caller's server span.
	spans := rec.Spans()
	require.Len(t, spans, 4)
	render, calleeServer, client, callerServer := spans[0], spans[1], spans[2], spans[3]

	assert.Equal(t, "greet.render", render.Name)
	assert.Equal(t, "/hello/:name", calleeServer.Name)
	assert.Equal(t, tracing.KindClient, client.Kind)
	assert.Equal(t, "/greet-remote/:name", callerServer.Name)

	// One trace end to end
	for _, data := range spans {
		assert.Equal(t, callerServer.TraceID, data.TraceID)
	}
	assert.Equal(t, callerServer.TraceID.String(), body.TraceID)

	// Parenthood: caller server -> client -> callee server -> render
	assert.False(t, callerServer.HasParent)
	require.True(t, client.HasParent)
	assert.Equal(t, callerServer.SpanID, client.ParentSpanID)
	require.True(t, calleeServer.HasParent)
	assert.Equal(t, client.SpanID, calleeServer.ParentSpanID)
	require.True(t, render.HasParent)
	assert.Equal(t, calleeServer.SpanID, render.ParentSpanID)

	assert.Equal(t, tracing.StatusOk, client.Status.Code)
	assert.Equal(t, tracing.StatusOk, callerServer.Status.Code)
}

func TestGreetRemoteUpstreamFailure(t *testing.T) {
	rec := &spanRecorder{}
	tracer := tracing.New("tinyid", logging.NewNop(), tracing.WithProcessor(rec))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))

	// Upstream that is already gone
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead.Close()

	handler := NewHandler("tinyid", tracer, logging.NewNop(), testMetrics, dead.URL)
	handler.Register(router)

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/greet-remote/world")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	// The failed client span is still closed and exported, with Error status
	spans := rec.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, tracing.KindClient, spans[0].Kind)
	assert.Equal(t, tracing.StatusError, spans[0].Status.Code)
}
