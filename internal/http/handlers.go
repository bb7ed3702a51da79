package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady checks templates and pings the record store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.store == nil:
		checks["store"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	default:
		if err := s.store.Ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	cacheSizes := make(map[string]int, len(s.caches))
	for name, c := range s.caches {
		cacheSizes[name] = c.Size()
	}
	checks["cache"] = cacheSizes
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

// handleMetrics provides application and security metrics in Prometheus text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	m := s.appMetrics

	w.WriteHeader(http.StatusOK)

	counter(w, "http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter(w, "http_requests_failed_total", "HTTP requests answered with a 5xx status", traceMetrics.FailedRequests)
	gauge(w, "http_request_duration_avg_microseconds", "Average request duration", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP records_created_total Records created by kind\n")
	fmt.Fprintf(w, "# TYPE records_created_total counter\n")
	fmt.Fprintf(w, "records_created_total{kind=\"income\"} %d\n", atomic.LoadInt64(&m.incomeCreated))
	fmt.Fprintf(w, "records_created_total{kind=\"expenses\"} %d\n\n", atomic.LoadInt64(&m.expensesCreated))

	counter(w, "records_deleted_total", "Records deleted", atomic.LoadInt64(&m.recordsDeleted))
	counter(w, "stale_views_total", "Lists served from the last good snapshot after a store failure", atomic.LoadInt64(&m.staleViews))
	counter(w, "auth_sign_ins_total", "Successful sign-ins", atomic.LoadInt64(&m.signIns))
	counter(w, "auth_sign_ups_total", "Successful sign-ups", atomic.LoadInt64(&m.signUps))
	counter(w, "auth_failures_total", "Rejected sign-in or sign-up attempts", atomic.LoadInt64(&m.authFailures))

	if len(s.caches) > 0 {
		names := make([]string, 0, len(s.caches))
		for name := range s.caches {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n")
		fmt.Fprintf(w, "# TYPE cache_entries gauge\n")
		for _, name := range names {
			fmt.Fprintf(w, "cache_entries{type=%q} %d\n", name, s.caches[name].Size())
		}
		fmt.Fprintln(w)
	}

	counter(w, "rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	gauge(w, "active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	counter(w, "suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter(w, "invalid_client_ip_total", "Forwarded client addresses that failed to parse", securityMetrics.InvalidIPAttempts)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", time.Since(m.uptime).Seconds())
}

func counter(w http.ResponseWriter, name, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
}

func gauge(w http.ResponseWriter, name, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
}
