/*
Package tracing implements the request-scoped distributed tracing core:
span creation, context propagation across process boundaries, sampling,
and hand-off of finished spans to the export pipeline.

# Overview

One tracer per process creates spans and binds the current span to the
request's context.Context. Child spans always parent under whatever span is
bound at creation time, so one source of truth holds the whole parent/child
view: there is no second span-tracking system to disagree with, and no
process-wide mutable stack for concurrent requests to corrupt.

# Features

- W3C trace-context propagation (traceparent) over HTTP headers and gRPC metadata
- Deterministic trace-id ratio sampling, decided once at the root
- Context-scoped current-span binding, safe under concurrent requests
- HTTP and gRPC middleware for automatic instrumentation
- Guaranteed span closure on error, panic, and cancellation paths
- Structured logging integration with configurable span event detail

# Usage

	// Create tracer
	tracer := tracing.New("helloworld", logger,
		tracing.WithSampler(tracing.TraceIDRatioBased(0.1)),
		tracing.WithProcessor(processor),
	)

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer))

	// gRPC server interceptors
	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.StreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

	// Manual span creation
	ctx, span := tracer.Start(ctx, "operation")
	span.SetAttribute("key", "value")
	span.End()

	// Wrapped operation with guaranteed closure
	err := tracing.Instrument(ctx, tracer, "operation", func(ctx context.Context) error {
		return doWork(ctx)
	})

# Wire Format

Propagation uses the single canonical traceparent header:

	{2-hex version}-{32-hex trace id}-{16-hex span id}-{2-hex flags}

Flags bit 0 is the sampling decision, inherited by every child span so a
trace is either fully recorded or fully absent. Malformed headers are
treated as absent and a new root trace is started; propagation problems
never fail a request.

# Sampling

Samplers are deterministic functions of the trace id. Re-evaluating the
same id always yields the same decision, across calls and across processes,
so downstream services agree without renegotiating. Unsampled spans still
track parent/child nesting locally; they are simply never exported.
*/
package tracing
