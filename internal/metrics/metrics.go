package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ascas_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ascas_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	resolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ascas_resolve_total",
			Help: "Position queries by outcome (success, partial, failure).",
		},
		[]string{"outcome"},
	)

	objectFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ascas_object_failures_total",
			Help: "Per-object resolution failures by error kind.",
		},
		[]string{"kind"},
	)

	propagationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ascas_propagation_duration_seconds",
			Help:    "Time to propagate one object's trajectory.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	tleFetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ascas_tle_fetch_errors_total",
		Help: "Failed bulk TLE refreshes.",
	})

	tleDatasetCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascas_tle_dataset_entries",
		Help: "Number of element sets in the current dataset.",
	})

	tleDatasetAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascas_tle_dataset_age_seconds",
		Help: "Seconds since the current dataset was fetched.",
	})

	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ascas_element_cache_requests_total",
			Help: "Element cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ascas_element_cache_evictions_total",
		Help: "Element cache entries removed by expiry or invalidation.",
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ascas_element_cache_entries",
		Help: "Element sets currently cached.",
	})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ascas_rate_limited_total",
		Help: "Requests rejected by the per-client limiter.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		resolveTotal,
		objectFailuresTotal,
		propagationSeconds,
		tleFetchErrors,
		tleDatasetCount,
		tleDatasetAge,
		cacheRequests,
		cacheEvictions,
		cacheEntries,
		rateLimited,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncResolve counts one position query with the given outcome.
func IncResolve(outcome string) { resolveTotal.WithLabelValues(outcome).Inc() }

// IncObjectFailure counts one failed object by error kind.
func IncObjectFailure(kind string) { objectFailuresTotal.WithLabelValues(kind).Inc() }

// ObservePropagation records the time spent propagating one trajectory.
func ObservePropagation(d time.Duration) { propagationSeconds.Observe(d.Seconds()) }

// IncTLEFetchErrors counts a failed bulk refresh.
func IncTLEFetchErrors() { tleFetchErrors.Inc() }
func SetTLEDatasetCount(n int) { tleDatasetCount.Set(float64(n)) }
func SetTLEDatasetAge(seconds float64) { tleDatasetAge.Set(seconds) }

func IncCacheHit() { cacheRequests.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheRequests.WithLabelValues("miss").Inc() }
func AddCacheEvictions(n int) { cacheEvictions.Add(float64(n)) }
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

func IncRateLimited() { rateLimited.Inc() }

// knownRoutes are exact paths recorded under their own label.
var knownRoutes = map[string]bool{
	"/":                    true,
	"/app.js":              true,
	"/styles.css":          true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/positions":    true,
	"/api/v1/catalog":      true,
	"/api/v1/conjunction":  true,
	"/api/v1/tle/metadata": true,
	"/api/v1/tle/fetch":    true,
	"/api/v1/cache/stats":  true,
}

const propagatePrefix = "/api/v1/propagate/"

// normalizeRoute maps a request path to a bounded label set so scanners and
// per-object URLs do not explode series cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, propagatePrefix); ok && id != "" && !strings.Contains(id, "/") {
		return propagatePrefix + "{norad_id}"
	}
	return "other"
}

// Route returns the normalized route label of r.
func Route(r *http.Request) string {
	return normalizeRoute(r.URL.Path)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
