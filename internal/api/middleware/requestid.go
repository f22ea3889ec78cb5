// Package middleware provides HTTP middleware for the demo server:
// request ids, CORS, and per-IP rate limiting. Tracing middleware lives in
// the tracing package next to the core it instruments.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tinyid/tracekit/internal/shared/id"
)

// RequestIDHeader carries the request id on both request and response.
const RequestIDHeader = "X-Request-Id"

// requestIDKey is the gin context key for the request id.
const requestIDKey = "request_id"

// RequestID assigns each request a ULID, honoring an id supplied by the
// caller, and reflects it in the response headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = id.NewRequestID().String()
		}

		c.Set(requestIDKey, rid)
		c.Header(RequestIDHeader, rid)

		c.Next()
	}
}

// GetRequestID returns the request id assigned by the RequestID middleware.
func GetRequestID(c *gin.Context) string {
	rid, _ := c.Get(requestIDKey)
	s, _ := rid.(string)
	return s
}
