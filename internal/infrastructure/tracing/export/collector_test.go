package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyid/tracekit/internal/infrastructure/tracing"
	"github.com/tinyid/tracekit/internal/logging"
	"github.com/tinyid/tracekit/internal/shared/id"
)

func newCollector(t *testing.T, endpoint string, retries int) *HTTPCollector {
	t.Helper()
	return NewHTTPCollector(CollectorConfig{
		Endpoint:    endpoint,
		Retries:     retries,
		Timeout:     2 * time.Second,
		Service:     "tinyid",
		Version:     "1.2.3",
		Environment: "test",
	}, logging.NewNop(), nil)
}

func TestExportSpansPayloadShape(t *testing.T) {
	var received wirePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	collector := newCollector(t, server.URL, 0)

	traceID := id.NewTraceID()
	rootID := id.NewSpanID()
	childID := id.NewSpanID()
	start := time.Now().Add(-50 * time.Millisecond)

	batch := []tracing.SpanData{
		{
			TraceID:   traceID,
			SpanID:    rootID,
			Name:      "GET /hello/:name",
			Kind:      tracing.KindServer,
			Service:   "tinyid",
			StartTime: start,
			EndTime:   start.Add(40 * time.Millisecond),
			Attributes: map[string]interface{}{
				"http.method": "GET",
			},
			Status: tracing.Status{Code: tracing.StatusOk},
		},
		{
			TraceID:      traceID,
			SpanID:       childID,
			ParentSpanID: rootID,
			HasParent:    true,
			Name:         "db.query",
			Kind:         tracing.KindClient,
			Service:      "tinyid",
			StartTime:    start.Add(5 * time.Millisecond),
			EndTime:      start.Add(15 * time.Millisecond),
			Status:       tracing.Status{Code: tracing.StatusError, Message: "timeout"},
			Events: []tracing.Event{
				{Name: "exception", Timestamp: start.Add(14 * time.Millisecond),
					Attributes: map[string]interface{}{"exception.message": "timeout"}},
			},
		},
	}

	require.NoError(t, collector.ExportSpans(context.Background(), batch))

	assert.NotEmpty(t, received.BatchID)
	assert.Equal(t, "tinyid", received.Resource["service.name"])
	assert.Equal(t, "1.2.3", received.Resource["service.version"])
	assert.Equal(t, "test", received.Resource["deployment.environment"])
	assert.NotEmpty(t, received.Resource["service.instance.id"])

	require.Len(t, received.Spans, 2)
	root, child := received.Spans[0], received.Spans[1]

	assert.Equal(t, traceID.String(), root.TraceID)
	assert.Equal(t, rootID.String(), root.ID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, "server", root.Kind)
	assert.Equal(t, "ok", root.Status)
	assert.Empty(t, root.Error)
	assert.Equal(t, int64(40_000), root.Duration)
	assert.Equal(t, "GET", root.Tags["http.method"])

	assert.Equal(t, rootID.String(), child.ParentID)
	assert.Equal(t, "client", child.Kind)
	assert.Equal(t, "error", child.Status)
	assert.Equal(t, "timeout", child.Error)
	require.Len(t, child.Events, 1)
	assert.Equal(t, "exception", child.Events[0].Name)
}

func TestExportSpansRetriesAreBounded(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	const retries = 2
	collector := newCollector(t, server.URL, retries)

	err := collector.ExportSpans(context.Background(), []tracing.SpanData{span("op")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(retries+1), attempts.Load())
}

func TestExportSpansRetryThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	collector := newCollector(t, server.URL, 3)

	require.NoError(t, collector.ExportSpans(context.Background(), []tracing.SpanData{span("op")}))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestExportSpansClientErrorDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	collector := newCollector(t, server.URL, 3)

	err := collector.ExportSpans(context.Background(), []tracing.SpanData{span("op")})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "4xx responses are not retried")
}

func TestExportSpansEmptyBatchIsNoop(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer server.Close()

	collector := newCollector(t, server.URL, 0)

	require.NoError(t, collector.ExportSpans(context.Background(), nil))
	assert.Zero(t, attempts.Load())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	collector := newCollector(t, server.URL, 0)

	batch := []tracing.SpanData{span("op")}
	for i := 0; i < 5; i++ {
		require.Error(t, collector.ExportSpans(context.Background(), batch))
	}

	// Circuit is open now; the request never reaches the wire
	server.Close()
	err := collector.ExportSpans(context.Background(), batch)
	require.Error(t, err)
}
