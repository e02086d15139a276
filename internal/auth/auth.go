// Package auth enforces an optional bearer token on mutating endpoints.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/star/ascas/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// route matches a method and a path, or a path prefix when the path ends
// in "/".
type route struct {
	method string
	path   string
}

func (rt route) matches(r *http.Request) bool {
	if rt.method != r.Method && !(rt.method == http.MethodGet && r.Method == http.MethodHead) {
		return false
	}
	if strings.HasSuffix(rt.path, "/") && rt.path != "/" {
		return strings.HasPrefix(r.URL.Path, rt.path)
	}
	return r.URL.Path == rt.path
}

// publicRoutes answer without a token. Queries are read-only; dataset
// refresh and anything not listed need one.
var publicRoutes = []route{
	{http.MethodGet, "/"},
	{http.MethodGet, "/app.js"},
	{http.MethodGet, "/styles.css"},
	{http.MethodGet, "/healthz"},
	{http.MethodGet, "/readyz"},
	{http.MethodGet, "/metrics"},
	{http.MethodPost, "/api/v1/positions"},
	{http.MethodGet, "/api/v1/propagate/"},
	{http.MethodGet, "/api/v1/conjunction"},
	{http.MethodGet, "/api/v1/catalog"},
	{http.MethodGet, "/api/v1/tle/metadata"},
	{http.MethodGet, "/api/v1/cache/stats"},
}

func isPublic(r *http.Request) bool {
	for _, rt := range publicRoutes {
		if rt.matches(r) {
			return true
		}
	}
	return false
}

// bearerToken extracts the credentials of an "Authorization: Bearer" header.
// The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware rejects requests outside publicRoutes that lack the configured
// token. It is a no-op when auth is disabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	want := []byte(cfg.Token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isPublic(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ascas"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
