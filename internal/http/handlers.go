package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	applog "otakuwallet/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.api.Ping(ctx); err != nil {
		applog.FromContext(ctx).WithComponent(applog.ComponentHTTP).WarnContext(ctx,
			"Readiness check failed", applog.FieldError, err)
		checks["store"] = "failed"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request, security and cache metrics in the
// Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "gauge", "Requests currently being served", traceMetrics.InFlight)

	fmt.Fprintf(w, "# HELP http_responses_total Completed responses by status class\n")
	fmt.Fprintf(w, "# TYPE http_responses_total counter\n")
	fmt.Fprintf(w, "http_responses_total{class=\"2xx\"} %d\n", traceMetrics.Status2xx)
	fmt.Fprintf(w, "http_responses_total{class=\"3xx\"} %d\n", traceMetrics.Status3xx)
	fmt.Fprintf(w, "http_responses_total{class=\"4xx\"} %d\n", traceMetrics.Status4xx)
	fmt.Fprintf(w, "http_responses_total{class=\"5xx\"} %d\n\n", traceMetrics.Status5xx)

	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests rejected by the security filter", securityMetrics.BlockedRequests)
	metric("invalid_client_ip_total", "counter", "Unparseable client or forwarded addresses", securityMetrics.InvalidIPAttempts)

	if s.cacheStats != nil {
		cs := s.cacheStats()
		metric("statistics_cache_hits_total", "counter", "Statistics cache hits", cs.Hits)
		metric("statistics_cache_misses_total", "counter", "Statistics cache misses", cs.Misses)
		metric("statistics_cache_entries", "gauge", "Current statistics cache entries", cs.Entries)
	}

	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}
