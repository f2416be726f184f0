// Package metrics exposes Prometheus collectors for market-data fetches,
// analytics computations and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openseai_risk"

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_total",
			Help:      "Market-data fetches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	computeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "compute_duration_seconds",
			Help:      "Time spent computing risk, optimization and stress results",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"operation"},
	)

	degradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "degraded_total",
			Help:      "Results returned in degraded form (insufficient data, solver fallback)",
		},
		[]string{"operation"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
		},
		[]string{"method", "route"},
	)
)

// Fetch outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// ObserveFetch counts one market-data fetch. kind is "price" or "history".
func ObserveFetch(kind string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	fetchTotal.WithLabelValues(kind, outcome).Inc()
}

// Timer records the duration of an analytics operation when stopped.
//
//	defer metrics.Time("risk")()
func Time(operation string) func() {
	start := time.Now()
	return func() {
		computeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Degraded counts an operation that returned a degraded result.
func Degraded(operation string) {
	degradedTotal.WithLabelValues(operation).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
