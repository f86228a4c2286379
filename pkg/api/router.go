// Package api exposes the cache over HTTP: content delivery with range
// support plus status, cleanup and listing endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/api/handlers"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET  /cache/{contentID} - serve content, acquiring on miss
//   - GET  /cache/status      - store usage and catalog aggregates
//   - POST /cache/cleanup     - run an eviction pass now
//   - GET  /cache/list        - paginated active entries
//   - GET  /health            - liveness probe
//   - GET  /health/ready      - readiness probe
func NewRouter(cacheHandler *handlers.CacheHandler, healthHandler *handlers.HealthHandler, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/cache", func(r chi.Router) {
		r.Get("/status", cacheHandler.Status)
		r.Post("/cleanup", cacheHandler.Cleanup)
		r.Get("/list", cacheHandler.List)
		r.Get("/{contentID}", cacheHandler.Get)
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs request start at DEBUG and completion at INFO using the
// internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
