// Package main is the entry point for the tracekit demo service.
//
// The binary runs a small HTTP service wired through the full tracing
// pipeline: traceparent extraction, server and nested internal spans,
// batch export to a collector (or the log in development), Prometheus
// metrics, and request-id / CORS / rate-limit middleware.
//
// Configuration:
//   - Environment variables (12-factor): SERVICE_NAME, ENVIRONMENT,
//     TRACE_SAMPLE_RATE, COLLECTOR_ENDPOINT, TRACE_BATCH_MAX_SIZE,
//     TRACE_FLUSH_INTERVAL, and friends
//   - CLI flags override: -port, -dev
//
// Usage:
//
//	# Production mode
//	COLLECTOR_ENDPOINT=http://collector:4318/v1/traces ./server -port 8000
//
//	# Development mode (colored logs, 100% sampling, spans to stdout)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown; pending spans are flushed
package main
