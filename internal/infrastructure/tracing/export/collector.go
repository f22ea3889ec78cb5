package export

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/tinyid/tracekit/internal/infrastructure/monitoring"
	"github.com/tinyid/tracekit/internal/infrastructure/resilience"
	"github.com/tinyid/tracekit/internal/infrastructure/tracing"
	"github.com/tinyid/tracekit/internal/logging"
	"github.com/tinyid/tracekit/internal/shared/id"
)

// CollectorConfig configures the HTTP collector client.
type CollectorConfig struct {
	// Endpoint receives POSTed span batches.
	Endpoint string
	// Retries bounds transmission retries per batch. Zero means one attempt.
	Retries int
	// Timeout bounds one HTTP attempt.
	Timeout time.Duration
	// Service identity, attached to every batch as resource attributes.
	Service     string
	Version     string
	Environment string
}

// HTTPCollector ships span batches to a collector endpoint as JSON over
// HTTP. Retries are bounded; the circuit breaker sheds load when the
// collector stays unreachable.
type HTTPCollector struct {
	client   *resty.Client
	breaker  *resilience.Breaker
	resource map[string]string
	logger   *logging.Logger
}

// NewHTTPCollector creates a collector client. Metrics may be nil.
func NewHTTPCollector(cfg CollectorConfig, logger *logging.Logger, metrics *monitoring.Metrics) *HTTPCollector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	// Retryable transport for connection reuse; retry policy lives in resty
	// so attempts can be counted.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "tracekit-collector/1.0").
		SetTransport(retryClient.HTTPClient.Transport).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	if metrics != nil {
		client.AddRetryHook(func(_ *resty.Response, _ error) {
			metrics.RecordExportRetry()
		})
	}

	breaker := resilience.New("trace-collector", resilience.Config{
		FailureThreshold: 5,
		MaxProbes:        2,
		Interval:         60 * time.Second,
		Cooldown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("collector circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HTTPCollector{
		client:  client,
		breaker: breaker,
		logger:  logger,
		resource: map[string]string{
			"service.name":           cfg.Service,
			"service.version":        cfg.Version,
			"deployment.environment": cfg.Environment,
			"service.instance.id":    uuid.NewString(),
			"telemetry.sdk.name":     "tracekit",
			"telemetry.sdk.language": "go",
		},
	}
}

// ExportSpans transmits one batch. Returns an error only after the bounded
// retries are exhausted or the breaker is open; the caller drops the batch.
func (c *HTTPCollector) ExportSpans(ctx context.Context, batch []tracing.SpanData) error {
	if len(batch) == 0 {
		return nil
	}

	payload := wirePayload{
		BatchID:  id.NewBatchID().String(),
		Resource: c.resource,
		Spans:    make([]wireSpan, 0, len(batch)),
	}
	for _, data := range batch {
		payload.Spans = append(payload.Spans, projectSpan(data))
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal span batch: %w", err)
	}

	return c.breaker.Do(func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(body).
			Post("")
		if err != nil {
			return fmt.Errorf("failed to send span batch: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("collector rejected batch: status %d", resp.StatusCode())
		}
		return nil
	})
}

// Shutdown releases client resources.
func (c *HTTPCollector) Shutdown(context.Context) error {
	return nil
}

// wirePayload is the collector wire format: a pure projection of SpanData
// computed at export time.
type wirePayload struct {
	BatchID  string            `json:"batchId"`
	Resource map[string]string `json:"resource"`
	Spans    []wireSpan        `json:"spans"`
}

type wireSpan struct {
	TraceID   string                 `json:"traceId"`
	ID        string                 `json:"id"`
	ParentID  string                 `json:"parentId,omitempty"`
	Name      string                 `json:"name"`
	Kind      string                 `json:"kind"`
	Timestamp int64                  `json:"timestamp"`
	Duration  int64                  `json:"duration"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Tags      map[string]interface{} `json:"tags,omitempty"`
	Events    []wireEvent            `json:"events,omitempty"`
}

type wireEvent struct {
	Name      string                 `json:"name"`
	Timestamp int64                  `json:"timestamp"`
	Tags      map[string]interface{} `json:"tags,omitempty"`
}

// projectSpan flattens one span snapshot into the wire representation.
// Timestamps and durations are microseconds.
func projectSpan(data tracing.SpanData) wireSpan {
	span := wireSpan{
		TraceID:   data.TraceID.String(),
		ID:        data.SpanID.String(),
		Name:      data.Name,
		Kind:      data.Kind.String(),
		Timestamp: data.StartTime.UnixMicro(),
		Duration:  data.Duration().Microseconds(),
		Status:    data.Status.Code.String(),
		Tags:      data.Attributes,
	}
	if data.HasParent {
		span.ParentID = data.ParentSpanID.String()
	}
	if data.Status.Code == tracing.StatusError {
		span.Error = data.Status.Message
	}
	for _, event := range data.Events {
		span.Events = append(span.Events, wireEvent{
			Name:      event.Name,
			Timestamp: event.Timestamp.UnixMicro(),
			Tags:      event.Attributes,
		})
	}
	return span
}
