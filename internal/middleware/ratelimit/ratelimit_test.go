package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"budgetnest/internal/log"
)

func TestLimiter_AllowBurstThenReject(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.001, Burst: 3}, log.Discard())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "other clients have their own bucket")

	m := rl.GetMetrics()
	assert.Equal(t, int64(1), m.TotalHits)
	assert.Equal(t, int64(4), m.Allowed)
	assert.Equal(t, int64(2), m.ClientCount)
	assert.Equal(t, 2, rl.ActiveClients())

	rl.Stop()
	assert.Zero(t, rl.ActiveClients())
}

func TestLimiter_Defaults(t *testing.T) {
	rl := NewLimiter(Config{}, nil)
	assert.Equal(t, 20, rl.burst)
	assert.InDelta(t, 5.0, float64(rl.limit), 0.0001)
}

func TestMiddleware_OnlyThrottlesMutations(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.001, Burst: 1}, log.Discard())
	ip := func(*http.Request) string { return "198.51.100.7" }
	h := rl.Middleware(ip, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	post := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/income", nil))
		return rr
	}

	assert.Equal(t, http.StatusNoContent, post().Code)
	limited := post()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	}
}

func TestMiddleware_CustomOnLimit(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.001, Burst: 1}, log.Discard())
	called := false
	h := rl.Middleware(func(*http.Request) string { return "a" }, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/x", nil))
	}
	assert.True(t, called)
}
