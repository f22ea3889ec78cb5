package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/tinyid/tracekit/internal/api/http"
	"github.com/tinyid/tracekit/internal/api/middleware"
	"github.com/tinyid/tracekit/internal/infrastructure/config"
	"github.com/tinyid/tracekit/internal/infrastructure/monitoring"
	"github.com/tinyid/tracekit/internal/infrastructure/tracing"
	"github.com/tinyid/tracekit/internal/infrastructure/tracing/export"
	"github.com/tinyid/tracekit/internal/logging"
)

// Server wraps the HTTP server and the tracing pipeline behind it.
type Server struct {
	router    *gin.Engine
	http      *http.Server
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	processor *export.BatchProcessor
	limiter   *middleware.RateLimiter
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing server",
		zap.String("service", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Server.Port),
		zap.Float64("sample_rate", cfg.Tracing.SampleRate),
	)

	// Initialize metrics first (needed by the tracing pipeline)
	metrics := monitoring.NewMetrics()

	// Initialize export pipeline: collector when configured, log fallback
	// for development
	var exporter export.Exporter
	if cfg.Tracing.CollectorEndpoint != "" {
		exporter = export.NewHTTPCollector(export.CollectorConfig{
			Endpoint:    cfg.Tracing.CollectorEndpoint,
			Retries:     cfg.Tracing.ExportRetries,
			Timeout:     cfg.Tracing.ExportTimeout,
			Service:     cfg.Service.Name,
			Version:     cfg.Service.Version,
			Environment: cfg.Service.Environment,
		}, logger, metrics)
		logger.Info("Trace collector configured",
			zap.String("endpoint", cfg.Tracing.CollectorEndpoint))
	} else {
		exporter = export.NewLogExporter(logger)
		logger.Info("No collector endpoint configured, exporting spans to log")
	}

	processor := export.NewBatchProcessor(exporter, logger, metrics, export.ProcessorConfig{
		QueueSize:     cfg.Tracing.QueueSize,
		BatchMaxSize:  cfg.Tracing.BatchMaxSize,
		FlushInterval: cfg.Tracing.FlushInterval,
		ExportTimeout: cfg.Tracing.ExportTimeout,
	})

	// Initialize tracer
	tracer := tracing.New(cfg.Service.Name, logger,
		tracing.WithSampler(tracing.SamplerForRate(cfg.Tracing.SampleRate)),
		tracing.WithProcessor(processor),
		tracing.WithEventDetail(cfg.Tracing.SpanEventDetail),
		tracing.WithMetrics(metrics),
		tracing.WithStrictMode(cfg.Logging.Development),
	)
	logger.Info("Distributed tracing initialized")

	// Build router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		router.Use(limiter.Middleware())
	}
	router.Use(monitoring.Middleware(metrics))
	router.Use(tracing.HTTPMiddlewareWithConfig(tracer, tracing.MiddlewareConfig{
		SlowRequestThreshold: cfg.Tracing.SlowRequest,
		TraceIDHeader:        "X-Trace-Id",
	}))

	// Remote greeting calls loop back into this process
	upstream := fmt.Sprintf("http://127.0.0.1:%s", cfg.Server.Port)
	handler := apihttp.NewHandler(cfg.Service.Name, tracer, logger, metrics, upstream)
	handler.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		router:    router,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
		tracer:    tracer,
		processor: processor,
		limiter:   limiter,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Tracer exposes the server's tracer for manual instrumentation.
func (s *Server) Tracer() *tracing.Tracer { return s.tracer }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.logger.Info("Server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, then flushes and stops the export
// pipeline so no finished span is lost on the way out.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	if err := s.processor.Shutdown(ctx); err != nil {
		s.logger.Warn("Trace pipeline shutdown incomplete", zap.Error(err))
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}

	_ = s.logger.Sync()
	return nil
}
