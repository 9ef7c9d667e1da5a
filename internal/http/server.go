// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"fintrack/internal/attachments"
	"fintrack/internal/backup"
	"fintrack/internal/core"
	"fintrack/internal/export"
	applog "fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/settings"
	"fintrack/internal/stats"
)

const (
	maxJSONBytes   = 1 << 20
	maxUploadBytes = 256 << 20
	requestTimeout = 30 * time.Second
)

// DataStore is the part of the repository the handlers use directly.
type DataStore interface {
	ExportDataset(ctx context.Context) (core.Dataset, error)
	LatestBackup(ctx context.Context) (core.BackupRecord, bool, error)
	Ping(ctx context.Context) error
	Location() *time.Location
}

// Services bundles the use cases served over HTTP. Every field is required.
type Services struct {
	Store        DataStore
	Catalog      *services.CatalogService
	Transactions *services.TransactionService
	Budgets      *services.BudgetService
	Recurring    *services.RecurringProcessor
	Stats        *stats.Service
	Settings     *settings.Service
	Backup       *backup.Service
	Importer     *export.Importer
	Attachments  *attachments.Store
}

// Options tunes the server. A zero Options is usable.
type Options struct {
	Logger             *applog.Logger
	Metrics            *metrics.Collector // nil disables /metrics and request metrics
	RateLimitPerMinute int                // writes per client IP; 0 disables limiting
	TrustedProxies     []string           // CIDRs added to the private ranges
	Now                func() time.Time
}

type Server struct {
	http.Server
	svc          Services
	router       *mux.Router
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	logger       *applog.Logger
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		svc:      svc,
		router:   mux.NewRouter(),
		detector: security.NewDetector(),
		logger:   logger.WithComponent(applog.ComponentHTTP),
		now:      now,
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", "cidr", cidr, applog.FieldError, err)
		}
	}

	var observer trace.RequestObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	tracer := trace.NewMiddleware(logger, s.detector.ExtractClientIP, observer)

	r := s.router
	r.NotFoundHandler = tracer.Middleware(http.HandlerFunc(s.handleNotFound))
	r.MethodNotAllowedHandler = tracer.Middleware(http.HandlerFunc(s.handleMethodNotAllowed))
	r.Use(tracer.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	if opts.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited))
	}

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(withTimeout(requestTimeout))
	s.accountRoutes(api)
	s.categoryRoutes(api)
	s.transactionRoutes(api)
	s.budgetRoutes(api)
	s.statsRoutes(api)
	s.dataRoutes(api)
	s.attachmentRoutes(api)
	s.settingsRoutes(api)
	s.recurringRoutes(api)

	return s
}

// Router exposes the handler tree for tests and embedding.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) location() *time.Location {
	return s.svc.Store.Location()
}

// withTimeout bounds handler work; uploads and backups get the same budget.
func withTimeout(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// limitBody caps JSON request bodies.
func limitBody(w http.ResponseWriter, r *http.Request, n int64) {
	r.Body = http.MaxBytesReader(w, r.Body, n)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Store.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, applog.OpRead, core.NotFoundError("route", "no route for %s %s", r.Method, r.URL.Path))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: ErrorDetail{
		Kind:    applog.ErrorTypeValidation,
		Message: "method not allowed",
	}})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: ErrorDetail{
		Kind:    "rate_limited",
		Message: "rate limit exceeded, retry later",
	}})
}
