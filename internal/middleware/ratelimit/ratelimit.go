// Package ratelimit throttles mutating requests per client with a token bucket.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"budgetnest/internal/log"
)

// Limiter keeps one token bucket per client. Buckets idle for longer than
// IdleTTL are dropped by the cache janitor.
type Limiter struct {
	clients *gocache.Cache
	mu      sync.Mutex

	limit rate.Limit
	burst int

	hits    int64
	allowed int64

	logger *log.Logger
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration
	CleanupInterval   time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		Burst:             20,
		IdleTTL:           10 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter creates a new rate limiter
func NewLimiter(config Config, logger *log.Logger) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if logger == nil {
		logger = log.Discard()
	}

	return &Limiter{
		clients: gocache.New(config.IdleTTL, config.CleanupInterval),
		limit:   rate.Limit(config.RequestsPerSecond),
		burst:   config.Burst,
		logger:  logger.WithComponent(log.ComponentRateLimit),
	}
}

func (rl *Limiter) bucket(clientIP string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.clients.Get(clientIP); ok {
		lim := v.(*rate.Limiter)
		// touch to extend the idle expiry
		rl.clients.SetDefault(clientIP, lim)
		return lim
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients.SetDefault(clientIP, lim)
	return lim
}

// Allow reports whether a request from clientIP may proceed now.
func (rl *Limiter) Allow(clientIP string) bool {
	if rl.bucket(clientIP).Allow() {
		atomic.AddInt64(&rl.allowed, 1)
		return true
	}
	atomic.AddInt64(&rl.hits, 1)
	return false
}

// retryAfter is the whole number of seconds until clientIP regains a token.
func (rl *Limiter) retryAfter(clientIP string) int {
	r := rl.bucket(clientIP).Reserve()
	if !r.OK() {
		return 1
	}
	d := r.Delay()
	r.Cancel()
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	return rl.clients.ItemCount()
}

// Stop drops every tracked client.
func (rl *Limiter) Stop() {
	rl.clients.Flush()
}

// Metrics for monitoring rate limit performance
type Metrics struct {
	TotalHits   int64
	Allowed     int64
	ClientCount int64
}

// GetMetrics returns current rate limiting metrics
func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   atomic.LoadInt64(&rl.hits),
		Allowed:     atomic.LoadInt64(&rl.allowed),
		ClientCount: int64(rl.clients.ItemCount()),
	}
}

// Middleware throttles requests whose method can change state. Safe methods
// pass through untouched.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := extractIP(r)
			if !rl.Allow(clientIP) {
				rl.logger.WarnContext(r.Context(), "Rate limit exceeded",
					log.FieldClientIP, clientIP,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path)

				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter(clientIP)))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
