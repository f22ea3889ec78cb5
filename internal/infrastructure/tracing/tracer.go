package tracing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tinyid/tracekit/internal/infrastructure/config"
	"github.com/tinyid/tracekit/internal/infrastructure/monitoring"
	"github.com/tinyid/tracekit/internal/logging"
	"github.com/tinyid/tracekit/internal/shared/id"
)

// SpanProcessor receives finished, sampled spans. The batch processor in the
// export package is the production implementation.
type SpanProcessor interface {
	OnEnd(data SpanData)
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Tracer creates spans and owns the sampling, binding, and hand-off rules.
// There is exactly one source of truth for span identity and parenthood;
// export formats are projections computed after End.
type Tracer struct {
	service     string
	logger      *logging.Logger
	sampler     Sampler
	processor   SpanProcessor
	gen         *id.Generator
	eventDetail config.SpanEventDetail
	metrics     *monitoring.Metrics
	strict      bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithSampler sets the sampling strategy. Default is AlwaysOn.
func WithSampler(s Sampler) Option {
	return func(t *Tracer) { t.sampler = s }
}

// WithProcessor sets the destination for finished sampled spans.
func WithProcessor(p SpanProcessor) Option {
	return func(t *Tracer) { t.processor = p }
}

// WithGenerator overrides the id generator. Useful for deterministic tests.
func WithGenerator(g *id.Generator) Option {
	return func(t *Tracer) { t.gen = g }
}

// WithEventDetail controls span open/close/event log records.
func WithEventDetail(d config.SpanEventDetail) Option {
	return func(t *Tracer) { t.eventDetail = d }
}

// WithMetrics attaches span lifecycle counters.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(t *Tracer) { t.metrics = m }
}

// WithStrictMode makes span usage errors panic instead of logging a warning.
// Enable in development, never in production.
func WithStrictMode(strict bool) Option {
	return func(t *Tracer) { t.strict = strict }
}

// New creates a tracer for the named service.
func New(service string, logger *logging.Logger, opts ...Option) *Tracer {
	t := &Tracer{
		service:     service,
		logger:      logger,
		sampler:     AlwaysOn(),
		gen:         id.Default(),
		eventDetail: config.SpanEventsEnterExit,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Service returns the service name spans are attributed to.
func (t *Tracer) Service() string { return t.service }

// SpanOption configures one span at creation.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind      Kind
	remote    SpanContext
	hasRemote bool
}

// WithKind sets the span kind. Default is KindInternal.
func WithKind(k Kind) SpanOption {
	return func(c *spanConfig) { c.kind = k }
}

// WithRemoteParent parents the span under a context extracted from wire
// headers. Ignored if the remote context is invalid.
func WithRemoteParent(sc SpanContext) SpanOption {
	return func(c *spanConfig) {
		if sc.IsValid() {
			c.remote = sc
			c.hasRemote = true
		}
	}
}

// Start opens a span and binds it as current in the returned context.
// Parenthood resolves in order: explicit remote parent, then the span
// currently bound to ctx, then a new root (sampling decided here and only
// here). A span is returned even when unsampled so callers never branch on
// the sampling decision.
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	cfg := spanConfig{kind: KindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}

	var sc SpanContext
	switch {
	case cfg.hasRemote:
		sc = childOf(cfg.remote, t.gen.SpanID())
	case SpanFromContext(ctx) != nil:
		sc = childOf(SpanFromContext(ctx).Context(), t.gen.SpanID())
	default:
		traceID := t.gen.TraceID()
		sc = rootContext(traceID, t.gen.SpanID(), t.sampler.Decide(traceID))
	}

	span := &Span{
		sc:         sc,
		name:       name,
		kind:       cfg.kind,
		service:    t.service,
		startTime:  time.Now(),
		attributes: make(map[string]interface{}),
		tracer:     t,
	}

	if t.metrics != nil {
		t.metrics.RecordSpanStart(cfg.kind.String())
	}
	t.logOpen(span)

	return ContextWithSpan(ctx, span), span
}

// onEnd routes a finished span to the logs and, when sampled, to the
// processor. Unsampled spans stop here.
func (t *Tracer) onEnd(s *Span, data SpanData) {
	t.logClose(s, data)

	if t.metrics != nil {
		t.metrics.RecordSpanEnd(s.kind.String(), data.Status.Code.String())
	}

	if !s.IsSampled() || t.processor == nil {
		return
	}
	t.processor.OnEnd(data)
}

// usageError reports a programming mistake such as mutating an ended span.
// Strict mode turns it into a panic so tests and development catch it;
// production traffic must never crash over a tracing bug.
func (t *Tracer) usageError(msg string, s *Span) {
	if t.strict {
		panic(fmt.Sprintf("tracing: %s (trace=%s span=%s name=%q)",
			msg, s.sc.TraceID(), s.sc.SpanID(), s.name))
	}
	t.logger.Warn("tracing usage error",
		zap.String("detail", msg),
		logging.TraceID(s.sc.TraceID().String()),
		logging.SpanID(s.sc.SpanID().String()),
		zap.String("span_name", s.name),
	)
}

func (t *Tracer) logOpen(s *Span) {
	if t.eventDetail == config.SpanEventsNone {
		return
	}
	t.logger.Debug("span started",
		logging.TraceID(s.sc.TraceID().String()),
		logging.SpanID(s.sc.SpanID().String()),
		zap.String("operation", s.name),
		zap.String("kind", s.kind.String()),
		zap.Bool("sampled", s.sc.IsSampled()),
	)
}

func (t *Tracer) logClose(s *Span, data SpanData) {
	if t.eventDetail == config.SpanEventsNone {
		return
	}

	fields := []zap.Field{
		logging.TraceID(data.TraceID.String()),
		logging.SpanID(data.SpanID.String()),
		zap.String("operation", data.Name),
		zap.String("kind", data.Kind.String()),
		zap.Duration("duration", data.Duration()),
		zap.String("service", data.Service),
	}
	if data.HasParent {
		fields = append(fields, zap.String("parent_id", data.ParentSpanID.String()))
	}

	if data.Status.Code == StatusError {
		fields = append(fields, zap.String("error", data.Status.Message))
		t.logger.Error("span completed with error", fields...)
		return
	}
	t.logger.Info("span completed", fields...)
}

// logEvent mirrors span events to the logs when full detail is enabled.
func (t *Tracer) logEvent(s *Span, name string, attrs map[string]interface{}) {
	if t.eventDetail != config.SpanEventsAll {
		return
	}
	t.logger.Debug("span event",
		logging.TraceID(s.sc.TraceID().String()),
		logging.SpanID(s.sc.SpanID().String()),
		zap.String("event", name),
		zap.Any("attributes", attrs),
	)
}

// Instrument wraps fn in an internal span and guarantees closure on every
// exit path: normal return, error, and panic.
func Instrument(ctx context.Context, t *Tracer, name string, fn func(context.Context) error) error {
	ctx, span := t.Start(ctx, name)
	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(StatusError, fmt.Sprintf("panic: %v", r))
			span.End()
			panic(r)
		}
	}()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
	} else {
		span.SetStatus(StatusOk, "")
	}
	span.End()
	return err
}
