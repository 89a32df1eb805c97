// Package trace assigns request IDs, writes the access log and keeps
// request counters for the /metrics endpoint.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	applog "otakuwallet/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// RequestIDHeader is echoed on every response.
	RequestIDHeader = "X-Request-ID"
)

// Upstream IDs are accepted only when they look harmless in a log line.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	metrics   *counters
}

type counters struct {
	total      int64
	inFlight   int64
	status2xx  int64
	status3xx  int64
	status4xx  int64
	status5xx  int64
	durationUS int64
}

// Metrics is a snapshot of the request counters.
type Metrics struct {
	TotalRequests       int64
	InFlight            int64
	Status2xx           int64
	Status3xx           int64
	Status4xx           int64
	Status5xx           int64
	AverageResponseTime int64 // in microseconds
}

// NewMiddleware creates a new trace middleware
func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		metrics:   &counters{},
	}
}

// Middleware returns HTTP middleware for request tracing. It must run after
// applog.Middleware so the request logger carries the request ID.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(requestID) {
			requestID = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		logger := applog.FromContext(ctx).With(applog.FieldRequestID, requestID)
		ctx = applog.NewContext(ctx, logger)
		r = r.WithContext(ctx)

		logger.WithComponent(applog.ComponentHTTP).DebugContext(ctx, "HTTP request started",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, clientIP)

		atomic.AddInt64(&m.metrics.total, 1)
		atomic.AddInt64(&m.metrics.inFlight, 1)
		defer atomic.AddInt64(&m.metrics.inFlight, -1)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		atomic.AddInt64(&m.metrics.durationUS, duration.Microseconds())
		m.countStatus(status)

		applog.NewStructuredLogger(logger).LogHTTPEnd(ctx, r, status, duration.Milliseconds(), clientIP)
	})
}

func (m *Middleware) countStatus(status int) {
	switch {
	case status >= 500:
		atomic.AddInt64(&m.metrics.status5xx, 1)
	case status >= 400:
		atomic.AddInt64(&m.metrics.status4xx, 1)
	case status >= 300:
		atomic.AddInt64(&m.metrics.status3xx, 1)
	default:
		atomic.AddInt64(&m.metrics.status2xx, 1)
	}
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	total := atomic.LoadInt64(&m.metrics.total)
	out := Metrics{
		TotalRequests: total,
		InFlight:      atomic.LoadInt64(&m.metrics.inFlight),
		Status2xx:     atomic.LoadInt64(&m.metrics.status2xx),
		Status3xx:     atomic.LoadInt64(&m.metrics.status3xx),
		Status4xx:     atomic.LoadInt64(&m.metrics.status4xx),
		Status5xx:     atomic.LoadInt64(&m.metrics.status5xx),
	}
	if completed := out.Status2xx + out.Status3xx + out.Status4xx + out.Status5xx; completed > 0 {
		out.AverageResponseTime = atomic.LoadInt64(&m.metrics.durationUS) / completed
	}
	return out
}
