/*
Package monitoring provides Prometheus metrics for the tracing core and the
demo server.

# Overview

Tracking covers span lifecycle (started, ended, dropped), the export
pipeline (batches, retries, queue depth, transmission latency), and HTTP
request metrics for the server in front of it. Drop and retry counters are
the monitoring signal for tracing data loss; loss is never surfaced to
request callers.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record pipeline activity
	metrics.RecordSpanDrop("queue_full")
	metrics.RecordExportBatch(len(batch), elapsed, err == nil)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
