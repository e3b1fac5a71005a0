// Package web exposes the registry over HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/config"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/web/middleware"
)

// RateLimiter decides whether a request identified by key fits in the
// current window. cache.RateLimiter implements it on Redis.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// Options are the optional collaborators of a Server.
type Options struct {
	// Limiter shares rate limit counters between instances. Nil uses an
	// in-process limiter.
	Limiter RateLimiter

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP server for the person registry.
type Server struct {
	service *core.Service
	cfg     *config.Config
	limiter RateLimiter
	router  *chi.Mux
	server  *http.Server
	metrics http.Handler
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config, opts Options) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		router:  chi.NewRouter(),
	}
	if s.limiter == nil {
		s.limiter = newMemoryLimiter()
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(s.securityHeaders)
	s.router.Use(middleware.Identity(&s.cfg.Security))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit("api", s.cfg.Rate.RequestsPerMinute))

		// Public reads
		r.Get("/persons", s.handleListPersons)
		r.Get("/persons/{id}", s.handleGetPerson)
		r.Get("/persons/{id}/history", s.handlePersonHistory)
		r.Get("/export.csv", s.handleExportPersons)
		r.Get("/stats", s.handleStats)

		// Snapshots
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit("snapshot", s.cfg.Rate.SnapshotLimit))
			r.Post("/snapshots/simulate", s.handleSimulateSnapshot)
			r.Post("/snapshots", s.handleApplySnapshot)
		})

		// Change sources and rollback
		r.Get("/change-sources", s.handleListChangeSources)
		r.Get("/change-sources/{id}", s.handleGetChangeSource)
		r.Get("/change-sources/{id}/rollback", s.handlePreviewRollback)
		r.Post("/change-sources/{id}/rollback", s.handleRollback)

		// Admin edits
		r.Post("/persons/{id}/edit", s.handleEditPerson)
		r.Get("/persons/{id}/verify", s.handleVerifyPerson)

		// Moderation
		r.Post("/persons/{id}/submissions", s.handleCreateSubmission)
		r.Get("/submissions", s.handleListSubmissions)
		r.Get("/submissions/{id}", s.handleGetSubmission)
		r.Post("/submissions/{id}/approve", s.handleApproveSubmission)
		r.Post("/submissions/{id}/reject", s.handleRejectSubmission)

		// Audit log
		r.Get("/audit-log", s.handleAuditLog)
		r.Get("/audit-log/export", s.handleAuditLogExport)

		r.Get("/batches", s.handleBatchStatus)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 so exports can stream
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			// JSON and CSV only; nothing should ever load
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit limits requests per client IP and scope. Limiter failures let
// the request through.
func (s *Server) rateLimit(scope string, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !s.cfg.Rate.Enabled || perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry, err := s.limiter.Allow(r.Context(), scope+":"+r.RemoteAddr, perMinute, time.Minute)
			if err != nil {
				slog.Warn("rate limiter unavailable", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				secs := int(retry.Round(time.Second) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				respondErrorJSON(w, core.UserMessage{
					Message: "Too many requests",
					Action:  "Wait a minute and try again",
					Code:    "RATE001",
				}, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// memoryLimiter is the single-instance fixed-window limiter used when no
// shared limiter is configured.
type memoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

type visitor struct {
	count       int
	windowStart time.Time
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{visitors: make(map[string]*visitor), now: time.Now}
}

func (l *memoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now, window)

	v, ok := l.visitors[key]
	if !ok || now.Sub(v.windowStart) >= window {
		l.visitors[key] = &visitor{count: 1, windowStart: now}
		return true, 0, nil
	}
	if v.count >= limit {
		return false, window - now.Sub(v.windowStart), nil
	}
	v.count++
	return true, 0, nil
}

// sweep drops stale visitors once the map grows large.
func (l *memoryLimiter) sweep(now time.Time, window time.Duration) {
	if len(l.visitors) < 10000 {
		return
	}
	for k, v := range l.visitors {
		if now.Sub(v.windowStart) > 2*window {
			delete(l.visitors, k)
		}
	}
}

// handleHealth reports database connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		s.respondError(w, r, core.Persistence("health check", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
