// Package api serves the position resolver over HTTP.
package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/ascas/internal/auth"
	"github.com/star/ascas/internal/cache"
	"github.com/star/ascas/internal/catalog"
	"github.com/star/ascas/internal/conjunction"
	"github.com/star/ascas/internal/health"
	"github.com/star/ascas/internal/httputil"
	"github.com/star/ascas/internal/logging"
	"github.com/star/ascas/internal/metrics"
	"github.com/star/ascas/internal/observability"
	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/tle"
)

const propagatePrefix = "/api/v1/propagate/"

// Config holds HTTP server settings.
type Config struct {
	Addr               string
	TrustProxy         bool
	MaxConcurrentPerIP int
	MaxConcurrentTotal int
	Auth               auth.Config
}

// Deps are the services the handlers call. Refresher, Elements and Web may
// be nil.
type Deps struct {
	Store       *tle.Store
	Refresher   *tle.Refresher
	Elements    *cache.ElementCache
	Resolver    *resolver.Resolver
	Conjunction *conjunction.Analyzer
	Catalog     *catalog.Catalog
	Web         fs.FS
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{deps: deps, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(s.ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/positions", s.handlePositions)
	mux.HandleFunc("GET /api/v1/propagate/{norad_id}", s.handlePropagate)
	mux.HandleFunc("GET /api/v1/conjunction", s.handleConjunction)
	mux.HandleFunc("GET /api/v1/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/v1/tle/metadata", s.handleTLEMetadata)
	mux.HandleFunc("POST /api/v1/tle/fetch", s.handleTLEFetch)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)

	if deps.Web != nil {
		mux.Handle("GET /", http.FileServerFS(deps.Web))
	}

	// Build middleware chain: metrics -> tracing -> request ID -> logging -> auth -> limiter -> mux.
	limiter := newQueryLimiter(cfg.MaxConcurrentPerIP, cfg.MaxConcurrentTotal)
	var handler http.Handler = mux
	handler = limiter.middleware(cfg.TrustProxy, logger)(handler)
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = httputil.RequestID(handler)
	handler = observability.Middleware(metrics.Route, handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ready passes once queries can be answered: a dataset is loaded or
// per-object fetch is available.
func (s *Server) ready() error {
	if s.deps.Store != nil && s.deps.Store.Get() != nil {
		return nil
	}
	if s.deps.Elements != nil && s.deps.Elements.FetchEnabled() {
		return nil
	}
	return errors.New("no element data loaded and fetch disabled")
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logging.With(r.Context(), logger).Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
