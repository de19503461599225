// Package metrics registers the service's Prometheus collectors.
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

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

var (
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_refresh_duration_seconds",
			Help:    "Duration of daily metrics snapshot refreshes",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_refresh_total",
			Help: "Snapshot refresh attempts partitioned by outcome",
		},
		[]string{"status"},
	)

	SnapshotLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analytics_snapshot_last_success_timestamp_seconds",
			Help: "Unix time of the last successful snapshot refresh",
		},
	)

	SnapshotRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analytics_snapshot_rows",
			Help: "Number of rows in the daily metrics snapshot after the last refresh",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// ObserveRefresh records one refresh attempt.
func ObserveRefresh(status string, took time.Duration, rows int64, finished time.Time) {
	RefreshTotal.WithLabelValues(status).Inc()
	if status != StatusSucceeded {
		return
	}
	RefreshDuration.Observe(took.Seconds())
	SnapshotRows.Set(float64(rows))
	SnapshotLastSuccess.Set(float64(finished.Unix()))
}

// Middleware records request metrics labelled with the matched chi route pattern,
// which keeps label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
