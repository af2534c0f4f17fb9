package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts requests by route pattern and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPLatency tracks handler latency by route pattern.
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"route"},
	)
)

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the wrapper.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Middleware records request counts and latency. Routes are labelled
// by the mux pattern, not the raw path, to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.statusCode)).Inc()
		HTTPLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel folds dynamic path segments into their pattern so label
// cardinality stays bounded.
func routeLabel(path string) string {
	switch {
	case path == "/search":
		return "/search"
	case strings.HasPrefix(path, "/search/") && strings.HasSuffix(path, "/suggestions"):
		return "/search/{q}/suggestions"
	case strings.HasPrefix(path, "/lookup/") && strings.HasSuffix(path, "/stream"):
		return "/lookup/{word}/stream"
	case strings.HasPrefix(path, "/lookup/"):
		return "/lookup/{word}"
	case strings.HasPrefix(path, "/health/"), path == "/metrics":
		return path
	default:
		return "other"
	}
}
