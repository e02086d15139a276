package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/app.js", "/app.js"},
		{"/api/v1/positions", "/api/v1/positions"},
		{"/api/v1/catalog", "/api/v1/catalog"},
		{"/api/v1/conjunction", "/api/v1/conjunction"},
		{"/api/v1/tle/metadata", "/api/v1/tle/metadata"},
		{"/api/v1/tle/fetch", "/api/v1/tle/fetch"},
		{"/api/v1/cache/stats", "/api/v1/cache/stats"},

		// Parameterized propagate routes collapse to one label.
		{"/api/v1/propagate/25544", "/api/v1/propagate/{norad_id}"},
		{"/api/v1/propagate/44713", "/api/v1/propagate/{norad_id}"},
		{"/api/v1/propagate/99999999", "/api/v1/propagate/{norad_id}"},
		{"/api/v1/propagate/abc", "/api/v1/propagate/{norad_id}"},

		// Unknown/bot paths collapse to "other".
		{"/api/v1/propagate/", "other"},
		{"/api/v1/propagate/1/extra", "other"},
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique NORAD IDs produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		label := normalizeRoute("/api/v1/propagate/" + strconv.Itoa(20000+i))
		seen[label] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	counter := httpRequestsTotal.WithLabelValues("/api/v1/catalog", http.MethodGet, "418")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

func TestResolveCounters(t *testing.T) {
	before := testutil.ToFloat64(resolveTotal.WithLabelValues("partial"))
	IncResolve("partial")
	if got := testutil.ToFloat64(resolveTotal.WithLabelValues("partial")); got != before+1 {
		t.Errorf("partial outcomes = %v, want %v", got, before+1)
	}

	IncObjectFailure("NotFound")
	if got := testutil.ToFloat64(objectFailuresTotal.WithLabelValues("NotFound")); got < 1 {
		t.Errorf("NotFound failures = %v, want >= 1", got)
	}
}
