package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal, httpRequestDuration) }

var httpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zimage_http_requests_total",
		Help: "Total number of HTTP requests served by the batch API.",
	},
	[]string{"method", "route", "status"},
)

var httpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "zimage_http_request_duration_seconds",
		Help:    "Latency of HTTP requests served by the batch API.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

// ObserveRequest records one served request; route is the matched pattern, not the raw path
func ObserveRequest(method, route string, status int, latency time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(latency.Seconds())
}
