/*
Package export ships finished spans to a trace backend, decoupled from
request handling.

# Overview

The BatchProcessor owns the pending-span queue: spans enter on End, batches
leave on a background goroutine when the batch fills, the flush timer
fires, or shutdown drains. The queue is bounded; a full queue drops the
incoming span and increments a counter rather than blocking the request
path. Export failures are retried a bounded number of times, then the
batch is dropped with a logged warning. Nothing in this package ever
surfaces an error to a request caller.

# Exporters

  - HTTPCollector: JSON batches POSTed to a collector endpoint, with
    bounded retries and a circuit breaker
  - LogExporter: spans written to the structured log, the development
    fallback when no endpoint is configured

# Usage

	exporter := export.NewHTTPCollector(export.CollectorConfig{
		Endpoint: cfg.Tracing.CollectorEndpoint,
		Retries:  cfg.Tracing.ExportRetries,
		Service:  cfg.Service.Name,
	}, logger, metrics)

	processor := export.NewBatchProcessor(exporter, logger, metrics, export.ProcessorConfig{
		QueueSize:     cfg.Tracing.QueueSize,
		BatchMaxSize:  cfg.Tracing.BatchMaxSize,
		FlushInterval: cfg.Tracing.FlushInterval,
	})
	defer processor.Shutdown(context.Background())

	tracer := tracing.New(cfg.Service.Name, logger, tracing.WithProcessor(processor))
*/
package export
