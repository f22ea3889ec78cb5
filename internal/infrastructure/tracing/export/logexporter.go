package export

import (
	"context"

	"go.uber.org/zap"

	"github.com/tinyid/tracekit/internal/infrastructure/tracing"
	"github.com/tinyid/tracekit/internal/logging"
)

// LogExporter writes spans to the structured log instead of a collector.
// Development fallback for when no collector endpoint is configured.
type LogExporter struct {
	logger *logging.Logger
}

// NewLogExporter creates a log-backed exporter.
func NewLogExporter(logger *logging.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

// ExportSpans logs each span in the batch.
func (e *LogExporter) ExportSpans(_ context.Context, batch []tracing.SpanData) error {
	for _, data := range batch {
		fields := []zap.Field{
			logging.TraceID(data.TraceID.String()),
			logging.SpanID(data.SpanID.String()),
			zap.String("operation", data.Name),
			zap.String("kind", data.Kind.String()),
			zap.Duration("duration", data.Duration()),
			zap.String("service", data.Service),
			zap.String("status", data.Status.Code.String()),
		}
		if data.HasParent {
			fields = append(fields, zap.String("parent_id", data.ParentSpanID.String()))
		}
		if data.Status.Code == tracing.StatusError {
			fields = append(fields, zap.String("error", data.Status.Message))
		}
		e.logger.Info("span exported", fields...)
	}
	return nil
}

// Shutdown flushes the underlying logger.
func (e *LogExporter) Shutdown(context.Context) error {
	// Sync can fail on stdout; nothing useful to do with the error here.
	_ = e.logger.Sync()
	return nil
}
