package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	// 120 requests per minute (2 per second) with burst of 1
	rl := NewRateLimiter(120, 1)

	limiter := rl.GetLimiter("192.168.1.1")

	assert.True(t, limiter.Allow(), "first request should be allowed")
	assert.False(t, limiter.Allow(), "second request should be blocked, burst exhausted")

	// 2 req/sec means a token refills after 0.5s.
	time.Sleep(600 * time.Millisecond)
	assert.True(t, limiter.Allow(), "request after refill should be allowed")
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	rl := NewRateLimiter(2, 1)

	limiter1 := rl.GetLimiter("192.168.1.1")
	limiter2 := rl.GetLimiter("192.168.1.2")

	assert.True(t, limiter1.Allow())
	assert.True(t, limiter2.Allow())
	assert.False(t, limiter1.Allow())
	assert.False(t, limiter2.Allow())
}

func TestRateLimitMiddleware(t *testing.T) {
	e := echo.New()
	// The tight public-form profile: effectively one request per window.
	rl := NewRateLimiter(2, 1)

	wrapped := rl.RateLimitMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})

	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/public/leads", nil)
	req1.RemoteAddr = "192.168.1.1:12345"
	rec1 := httptest.NewRecorder()
	assert.NoError(t, wrapped(e.NewContext(req1, rec1)))
	assert.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/public/leads", nil)
	req2.RemoteAddr = "192.168.1.1:12346"
	rec2 := httptest.NewRecorder()
	assert.NoError(t, wrapped(e.NewContext(req2, rec2)))
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)

	// A different caller is unaffected.
	req3 := httptest.NewRequest(http.MethodPost, "/api/v1/public/leads", nil)
	req3.RemoteAddr = "10.0.0.9:40001"
	rec3 := httptest.NewRecorder()
	assert.NoError(t, wrapped(e.NewContext(req3, rec3)))
	assert.Equal(t, http.StatusOK, rec3.Code)
}
