package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-catalog/internal/metrics"
)

// MetricsConfig lists path prefixes the metrics middleware ignores.
type MetricsConfig struct {
	SkipPaths []string
}

// DefaultMetricsConfig ignores the scrape endpoint and the probes.
func DefaultMetricsConfig() MetricsConfig {
	skip := []string{"/metrics"}
	for path := range probePaths {
		skip = append(skip, path)
	}
	return MetricsConfig{SkipPaths: skip}
}

// Metrics returns a middleware that records Prometheus metrics. Installed
// with mux.Router.Use it labels requests by route template, so
// /api/media/42 is recorded as /api/media/{id:[0-9]+}.
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasPrefix(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			rec := newRecorder(w)
			start := time.Now()
			next.ServeHTTP(rec, r)

			path := routePath(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// routePath returns the matched route template, or the normalized path when
// the request was not routed through mux.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return normalizePath(r.URL.Path)
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// normalizePath replaces numeric segments with {id} to bound label
// cardinality.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if _, err := strconv.ParseUint(part, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
