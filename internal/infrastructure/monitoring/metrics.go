package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Span lifecycle metrics
	SpansStarted *prometheus.CounterVec
	SpansEnded   *prometheus.CounterVec
	SpansDropped *prometheus.CounterVec

	// Export pipeline metrics
	ExportBatches  *prometheus.CounterVec
	ExportedSpans  prometheus.Counter
	ExportRetries  prometheus.Counter
	ExportDuration prometheus.Histogram
	QueueDepth     prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON status API
type Snapshot struct {
	TotalRequests int64
	SpansStarted  int64
	SpansExported int64
	SpansDropped  int64
	ExportErrors  int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracekit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SpansStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_spans_started_total",
				Help: "Total number of spans opened, by kind",
			},
			[]string{"kind"},
		),
		SpansEnded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_spans_ended_total",
				Help: "Total number of spans closed, by kind and status",
			},
			[]string{"kind", "status"},
		),
		SpansDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_spans_dropped_total",
				Help: "Spans dropped before delivery, by reason",
			},
			[]string{"reason"},
		),

		ExportBatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracekit_export_batches_total",
				Help: "Export batch attempts, by result",
			},
			[]string{"result"},
		),
		ExportedSpans: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tracekit_exported_spans_total",
				Help: "Spans successfully delivered to the collector",
			},
		),
		ExportRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tracekit_export_retries_total",
				Help: "Export transmission retries",
			},
		),
		ExportDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracekit_export_duration_seconds",
				Help:    "Export batch transmission duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracekit_export_queue_depth",
				Help: "Closed spans waiting in the export queue",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracekit_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.mu.Unlock()
}

// RecordSpanStart records a span being opened
func (m *Metrics) RecordSpanStart(kind string) {
	m.SpansStarted.WithLabelValues(kind).Inc()

	m.mu.Lock()
	m.snapshot.SpansStarted++
	m.mu.Unlock()
}

// RecordSpanEnd records a span being closed
func (m *Metrics) RecordSpanEnd(kind, status string) {
	m.SpansEnded.WithLabelValues(kind, status).Inc()
}

// RecordSpanDrop records a span dropped before delivery
func (m *Metrics) RecordSpanDrop(reason string) {
	m.SpansDropped.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.SpansDropped++
	m.mu.Unlock()
}

// RecordSpanDrops records count spans dropped for the same reason
func (m *Metrics) RecordSpanDrops(reason string, count int) {
	m.SpansDropped.WithLabelValues(reason).Add(float64(count))

	m.mu.Lock()
	m.snapshot.SpansDropped += int64(count)
	m.mu.Unlock()
}

// RecordExportBatch records one export batch attempt
func (m *Metrics) RecordExportBatch(spans int, duration time.Duration, success bool) {
	m.ExportDuration.Observe(duration.Seconds())
	if success {
		m.ExportBatches.WithLabelValues("success").Inc()
		m.ExportedSpans.Add(float64(spans))

		m.mu.Lock()
		m.snapshot.SpansExported += int64(spans)
		m.mu.Unlock()
		return
	}

	m.ExportBatches.WithLabelValues("failure").Inc()

	m.mu.Lock()
	m.snapshot.ExportErrors++
	m.mu.Unlock()
}

// RecordExportRetry records one export transmission retry
func (m *Metrics) RecordExportRetry() {
	m.ExportRetries.Inc()
}

// SetQueueDepth updates the export queue depth gauge
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// UpdateUptime refreshes the uptime gauge
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// GetSnapshot returns current metric values for the JSON status API
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
