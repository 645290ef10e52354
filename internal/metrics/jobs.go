package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsTotal, jobsInFlight, batchesTotal) }

var jobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zimage_jobs_total",
		Help: "Total number of generation job transitions, labeled by event.",
	},
	[]string{"event"}, // 'submitted', 'done', 'error'
)

var jobsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "zimage_jobs_in_flight",
		Help: "Number of jobs submitted and not yet resolved.",
	},
)

var batchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zimage_batches_total",
		Help: "Total number of batch lifecycle transitions, labeled by status.",
	},
	[]string{"status"},
)

// IncJob counts one job transition
func IncJob(event string) {
	jobsTotal.WithLabelValues(event).Inc()
}

// AddInFlight moves the in-flight gauge by delta
func AddInFlight(delta float64) {
	jobsInFlight.Add(delta)
}

// IncBatch counts one finished batch
func IncBatch(status string) {
	batchesTotal.WithLabelValues(status).Inc()
}
