// Package http holds the demo service's route handlers. They exist to
// exercise the tracing stack end to end: the hello route opens a nested
// internal span inside the middleware's server span, and the remote greeting
// route makes a traced outbound call back into the service.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/tinyid/tracekit/internal/infrastructure/monitoring"
	"github.com/tinyid/tracekit/internal/infrastructure/tracing"
	"github.com/tinyid/tracekit/internal/logging"
)

// Handler bundles route handlers with their dependencies.
type Handler struct {
	service  string
	tracer   *tracing.Tracer
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	upstream string
	client   *http.Client
	started  time.Time
}

// NewHandler creates the demo route handlers. upstream is the base URL the
// remote greeting route calls; outbound requests go through the tracing
// transport so the callee sees this service's client span as its parent.
func NewHandler(service string, tracer *tracing.Tracer, logger *logging.Logger, metrics *monitoring.Metrics, upstream string) *Handler {
	return &Handler{
		service:  service,
		tracer:   tracer,
		logger:   logger,
		metrics:  metrics,
		upstream: upstream,
		client: &http.Client{
			Transport: tracing.NewTransport(tracer, nil),
			Timeout:   5 * time.Second,
		},
		started: time.Now(),
	}
}

// Register attaches all routes to the router.
func (h *Handler) Register(router *gin.Engine) {
	router.GET("/hello/:name", h.Hello)
	router.GET("/greet-remote/:name", h.GreetRemote)
	router.GET("/health", h.Health)
	router.GET("/status", h.Status)
}

// Hello renders a greeting inside a nested internal span, a child of the
// middleware's server span.
func (h *Handler) Hello(c *gin.Context) {
	var message string

	err := tracing.Instrument(c.Request.Context(), h.tracer, "greet.render",
		func(ctx context.Context) error {
			name := c.Param("name")
			if name == "" {
				return fmt.Errorf("empty name")
			}
			if span := tracing.SpanFromContext(ctx); span != nil {
				span.SetAttribute("greet.name", name)
			}
			message = fmt.Sprintf("Hello, %s!", name)
			return nil
		})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"message": message}
	if sc, ok := tracing.SpanContextFromContext(c.Request.Context()); ok {
		resp["trace_id"] = sc.TraceID().String()
	}
	c.JSON(http.StatusOK, resp)
}

// GreetRemote fetches the greeting over HTTP instead of rendering it
// locally. The request context carries the server span, so the traced
// transport opens a client span under it and the callee continues the same
// trace.
func (h *Handler) GreetRemote(c *gin.Context) {
	url := fmt.Sprintf("%s/hello/%s", h.upstream, c.Param("name"))

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, url, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("upstream status %d", resp.StatusCode)})
		return
	}

	var greeting struct {
		Message string `json:"message"`
		TraceID string `json:"trace_id"`
	}
	if err := sonic.Unmarshal(body, &greeting); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  greeting.Message,
		"via":      "remote",
		"trace_id": greeting.TraceID,
	})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.service,
		"uptime":  time.Since(h.started).String(),
	})
}

// Status reports tracing pipeline counters as JSON.
func (h *Handler) Status(c *gin.Context) {
	snap := h.metrics.GetSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"requests_total": snap.TotalRequests,
		"spans_started":  snap.SpansStarted,
		"spans_exported": snap.SpansExported,
		"spans_dropped":  snap.SpansDropped,
		"export_errors":  snap.ExportErrors,
	})
}
