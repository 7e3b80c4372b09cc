package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("ip:1.2.3.4"), "request %d should pass", i+1)
	}
	assert.False(t, rl.Allow("ip:1.2.3.4"))

	// Other keys are unaffected.
	assert.True(t, rl.Allow("ip:5.6.7.8"))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(50*time.Millisecond, 1)

	assert.True(t, rl.Allow("ip:1.2.3.4"))
	assert.False(t, rl.Allow("ip:1.2.3.4"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("ip:1.2.3.4"))
}

func TestLimitByIP(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	handler := LimitByIP(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remoteAddr, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
		req.RemoteAddr = remoteAddr
		if forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", forwardedFor)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1234", ""))

	// Forwarded requests are keyed by the originating client address.
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234", "203.0.113.9"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:9999", "203.0.113.9, 10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.3:1111", "203.0.113.9"))
}
