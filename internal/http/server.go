package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"otakuwallet/internal/cache"
	"otakuwallet/internal/core"
	"otakuwallet/internal/identity"
	applog "otakuwallet/internal/log"
	"otakuwallet/internal/middleware/ratelimit"
	"otakuwallet/internal/middleware/security"
	"otakuwallet/internal/middleware/trace"
	"otakuwallet/internal/services"
)

// ExpenseAPI is the service surface the handlers call. *services.ExpenseService
// satisfies it.
type ExpenseAPI interface {
	Create(ctx context.Context, owner string, in core.ExpenseInput) (core.Expense, error)
	Get(ctx context.Context, owner string, id int64) (core.Expense, error)
	List(ctx context.Context, owner string, f services.ListFilter) ([]core.Expense, error)
	Update(ctx context.Context, owner string, id int64, patch core.ExpensePatch) (core.Expense, error)
	Delete(ctx context.Context, owner string, id int64) error
	Statistics(ctx context.Context, owner string) (core.Statistics, error)
	CategoryBreakdown(ctx context.Context, owner string) ([]core.CategorySummary, error)
	Ping(ctx context.Context) error
}

var _ ExpenseAPI = (*services.ExpenseService)(nil)

// Server is an HTTP server with graceful shutdown.
type Server struct {
	http.Server
	api      ExpenseAPI
	identity identity.Provider
	logger   *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	cacheStats       func() cache.Stats
	started          time.Time
}

type serverOptions struct {
	logger       *applog.Logger
	rateLimitRPM int
	corsOrigins  []string
	cacheStats   func() cache.Stats
}

type ServerOption func(*serverOptions)

func WithLogger(l *applog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithRateLimit caps mutating requests per client IP and minute.
func WithRateLimit(rpm int) ServerOption {
	return func(o *serverOptions) { o.rateLimitRPM = rpm }
}

// WithCORS enables cross-origin requests from the given origins. Cookies
// are allowed so the visitor identity survives cross-origin calls.
func WithCORS(origins []string) ServerOption {
	return func(o *serverOptions) { o.corsOrigins = origins }
}

// WithCacheStats exposes the statistics cache counters on /metrics.
func WithCacheStats(fn func() cache.Stats) ServerOption {
	return func(o *serverOptions) { o.cacheStats = fn }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, api ExpenseAPI, provider identity.Provider, opts ...ServerOption) *Server {
	o := serverOptions{rateLimitRPM: ratelimit.DefaultConfig().RequestsPerMinute}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = applog.Default(applog.ComponentHTTP)
	}

	detector := security.NewDetector()
	s := &Server{
		api:              api,
		identity:         provider,
		logger:           o.logger,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: o.rateLimitRPM}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
		cacheStats:       o.cacheStats,
		started:          time.Now(),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(o.corsOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(applog.Middleware(s.logger))
	r.Use(s.traceMiddleware.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.securityDetector.Middleware)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", trace.RequestIDHeader},
			ExposedHeaders:   []string{trace.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError(r, "resource not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError(r).Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, ratelimit.MutatingOnly,
			func(w http.ResponseWriter, r *http.Request) {
				applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
					"Rate limit exceeded",
					applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
					applog.FieldMethod, r.Method,
					applog.FieldPath, r.URL.Path)
				TooManyRequestsError(r).Write(w)
			}))

		r.Get("/categories", s.handleListCategories)
		r.Delete("/session", s.handleClearSession)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(s.identity, func(w http.ResponseWriter, r *http.Request) {
				InternalServerError(r).Write(w)
			}))

			r.Route("/expenses", func(r chi.Router) {
				r.Post("/", s.handleCreateExpense)
				r.Get("/", s.handleListExpenses)
				r.Get("/statistics", s.handleStatistics)
				r.Get("/statistics/categories", s.handleCategoryStatistics)
				r.Get("/{id}", s.handleGetExpense)
				r.Put("/{id}", s.handleUpdateExpense)
				r.Patch("/{id}", s.handleUpdateExpense)
				r.Delete("/{id}", s.handleDeleteExpense)
			})
		})
	})

	return r
}

// Shutdown stops the rate limiter and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()

	if err := s.Server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server shutdown failed", applog.FieldError, err)
		return err
	}
	return nil
}
