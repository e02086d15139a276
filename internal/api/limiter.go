package api

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/star/ascas/internal/httputil"
	"github.com/star/ascas/internal/metrics"
)

// queryLimiter caps in-flight computation requests per client IP and
// globally.
type queryLimiter struct {
	mu       sync.Mutex
	inFlight map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newQueryLimiter(maxPerIP, maxTotal int) *queryLimiter {
	if maxPerIP < 1 {
		maxPerIP = 8
	}
	if maxTotal < 1 {
		maxTotal = 256
	}
	return &queryLimiter{
		inFlight: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire attempts to register a request for ip. It returns false when the
// per-IP or global limit has been reached.
func (l *queryLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal {
		return false
	}
	if l.inFlight[ip] >= l.maxPerIP {
		return false
	}

	l.inFlight[ip]++
	l.total++
	return true
}

func (l *queryLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight[ip]--
	l.total--
	if l.inFlight[ip] <= 0 {
		delete(l.inFlight, ip)
	}
}

func (l *queryLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight[ip]
}

// limitedPath reports whether path runs propagation.
func limitedPath(path string) bool {
	switch path {
	case "/api/v1/positions", "/api/v1/conjunction":
		return true
	}
	return strings.HasPrefix(path, propagatePrefix)
}

func (l *queryLimiter) middleware(trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limitedPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := httputil.ClientIP(r, trustProxy)
			if !l.acquire(ip) {
				metrics.IncRateLimited()
				logger.Warn("query rate limit exceeded",
					"component", "api",
					"remote_ip", ip,
					"current_count", l.count(ip),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent queries")
				return
			}
			defer l.release(ip)

			next.ServeHTTP(w, r)
		})
	}
}
