package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRateLimitedRouter(cfg RateLimitConfig) (*gin.Engine, *RateLimiter) {
	limiter := NewRateLimiter(cfg)
	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router, limiter
}

func TestRateLimitWithinBurst(t *testing.T) {
	router, limiter := newRateLimitedRouter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             3,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	router, limiter := newRateLimitedRouter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             2,
	})
	defer limiter.Stop()

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(DefaultRateLimitConfig())
	defer limiter.Stop()

	now := time.Now()
	limiter.mu.Lock()
	limiter.clients["10.0.0.1"] = &rateClient{
		limiter:  rate.NewLimiter(1, 1),
		lastSeen: now.Add(-evictIdleAfter - time.Second),
	}
	limiter.clients["10.0.0.2"] = &rateClient{
		limiter:  rate.NewLimiter(1, 1),
		lastSeen: now,
	}
	limiter.mu.Unlock()

	limiter.evictIdle(now)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.clients, "10.0.0.1")
	assert.Contains(t, limiter.clients, "10.0.0.2")
}

func TestRateLimitStopTerminatesEviction(t *testing.T) {
	limiter := NewRateLimiter(DefaultRateLimitConfig())

	done := make(chan struct{})
	go func() {
		limiter.evictLoop() // a second loop on the same stop channel
		close(done)
	}()

	limiter.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("eviction loop did not exit after Stop")
	}

	// Stop is idempotent
	limiter.Stop()
}
