package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/tinyid/tracekit/internal/logging"
)

// MiddlewareConfig tunes the HTTP middleware.
type MiddlewareConfig struct {
	// SlowRequestThreshold triggers a warning log when a request exceeds it.
	// Zero disables the warning.
	SlowRequestThreshold time.Duration
	// TraceIDHeader is the response header carrying the trace id back to the
	// caller for correlation. Empty disables it.
	TraceIDHeader string
}

// DefaultMiddlewareConfig returns production-ready middleware configuration.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		SlowRequestThreshold: time.Second,
		TraceIDHeader:        "X-Trace-Id",
	}
}

// HTTPMiddleware creates Gin middleware for HTTP tracing with defaults.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return HTTPMiddlewareWithConfig(tracer, DefaultMiddlewareConfig())
}

// HTTPMiddlewareWithConfig creates Gin middleware for HTTP tracing.
//
// Per request: extract the incoming trace context (or start a new root),
// open a server span bound to the request context, run the handler, then
// set status and close. The deferred closer guarantees the span is ended
// and exported on every exit path, including handler panics and client
// cancellation.
func HTTPMiddlewareWithConfig(tracer *Tracer, cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := []SpanOption{WithKind(KindServer)}
		if remote, ok := Extract(HeaderCarrier(c.Request.Header)); ok {
			opts = append(opts, WithRemoteParent(remote))
		}

		name := c.FullPath()
		if name == "" {
			name = c.Request.URL.Path
		}

		ctx, span := tracer.Start(c.Request.Context(), name, opts...)
		span.SetAttribute("http.method", c.Request.Method)
		span.SetAttribute("http.route", name)
		span.SetAttribute("http.url", c.Request.URL.String())
		span.SetAttribute("http.user_agent", c.Request.UserAgent())
		span.SetAttribute("http.host", c.Request.Host)

		c.Request = c.Request.WithContext(ctx)

		if cfg.TraceIDHeader != "" {
			c.Header(cfg.TraceIDHeader, span.Context().TraceID().String())
		}

		defer func() {
			if r := recover(); r != nil {
				span.AddEvent("panic", map[string]interface{}{
					"panic.value": fmt.Sprint(r),
				})
				span.SetStatus(StatusError, "panic")
				span.End()
				panic(r)
			}
		}()

		c.Next()

		status := c.Writer.Status()
		span.SetAttribute("http.status_code", status)

		switch {
		case c.Request.Context().Err() != nil:
			span.SetStatus(StatusError, "cancelled")
		case len(c.Errors) > 0:
			span.RecordError(c.Errors.Last())
			span.SetStatus(StatusError, c.Errors.Last().Error())
		case status >= http.StatusInternalServerError:
			span.SetStatus(StatusError, http.StatusText(status))
		default:
			span.SetStatus(StatusOk, "")
		}

		duration := time.Since(span.StartTime())
		if cfg.SlowRequestThreshold > 0 && duration > cfg.SlowRequestThreshold {
			tracer.logger.Warn("slow request",
				logging.TraceID(span.Context().TraceID().String()),
				zap.String("route", name),
				zap.Duration("duration", duration),
				zap.Duration("threshold", cfg.SlowRequestThreshold),
			)
		}

		span.End()
	}
}

// GRPCUnaryInterceptor creates a gRPC unary server interceptor for tracing.
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		ctx, span := startServerSpan(ctx, tracer, info.FullMethod)
		span.SetAttribute("rpc.system", "grpc")
		span.SetAttribute("rpc.method", info.FullMethod)

		defer func() {
			if r := recover(); r != nil {
				span.SetStatus(StatusError, "panic")
				span.End()
				panic(r)
			}
			finishRPCSpan(span, ctx, err)
		}()

		resp, err = handler(ctx, req)
		return resp, err
	}
}

// GRPCStreamInterceptor creates a gRPC stream server interceptor for tracing.
func GRPCStreamInterceptor(tracer *Tracer) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		ctx, span := startServerSpan(ss.Context(), tracer, info.FullMethod)
		span.SetAttribute("rpc.system", "grpc")
		span.SetAttribute("rpc.method", info.FullMethod)
		span.SetAttribute("rpc.streaming", true)

		wrapped := &tracedServerStream{
			ServerStream: ss,
			ctx:          ctx,
		}

		defer func() {
			if r := recover(); r != nil {
				span.SetStatus(StatusError, "panic")
				span.End()
				panic(r)
			}
			finishRPCSpan(span, ctx, err)
		}()

		err = handler(srv, wrapped)
		return err
	}
}

// tracedServerStream wraps grpc.ServerStream with the span-bound context.
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// GRPCClientInterceptor creates a gRPC client interceptor that opens a
// client span and propagates its context in outgoing metadata, so the
// downstream service sees this span as its parent.
func GRPCClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, span := tracer.Start(ctx, method, WithKind(KindClient))
		span.SetAttribute("rpc.system", "grpc")
		span.SetAttribute("rpc.method", method)

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		Inject(span.Context(), MetadataCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		err := invoker(ctx, method, req, reply, cc, opts...)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(StatusError, err.Error())
		} else {
			span.SetStatus(StatusOk, "")
		}
		span.End()

		return err
	}
}

// Transport is an http.RoundTripper that opens a client span per outbound
// request and injects its context into the request headers.
type Transport struct {
	tracer *Tracer
	base   http.RoundTripper
}

// NewTransport wraps base with outbound tracing. A nil base uses
// http.DefaultTransport.
func NewTransport(tracer *Tracer, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{tracer: tracer, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(),
		fmt.Sprintf("HTTP %s", req.Method), WithKind(KindClient))
	span.SetAttribute("http.method", req.Method)
	span.SetAttribute("http.url", req.URL.String())

	req = req.Clone(ctx)
	Inject(span.Context(), HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
	} else {
		span.SetAttribute("http.status_code", resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError {
			span.SetStatus(StatusError, http.StatusText(resp.StatusCode))
		} else {
			span.SetStatus(StatusOk, "")
		}
	}
	span.End()

	return resp, err
}

// startServerSpan extracts the remote parent from incoming gRPC metadata and
// opens a server span bound to the returned context.
func startServerSpan(ctx context.Context, tracer *Tracer, name string) (context.Context, *Span) {
	opts := []SpanOption{WithKind(KindServer)}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if remote, found := Extract(MetadataCarrier(md)); found {
			opts = append(opts, WithRemoteParent(remote))
		}
	}
	return tracer.Start(ctx, name, opts...)
}

// finishRPCSpan records the handler outcome, including cancellation, and
// closes the span.
func finishRPCSpan(span *Span, ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		span.SetStatus(StatusError, "cancelled")
	case err != nil:
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
	default:
		span.SetStatus(StatusOk, "")
	}
	span.End()
}
