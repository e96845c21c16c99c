package transact

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// txMetrics holds Prometheus metrics for the transactor.
type txMetrics struct {
	once sync.Once

	commits      prometheus.Counter
	commitErrors *prometheus.CounterVec

	datomsAdded     prometheus.Counter
	datomsRetracted prometheus.Counter

	commitDuration prometheus.Histogram
}

var metrics txMetrics

func txMetricsInit() {
	metrics.once.Do(func() {
		metrics.commits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datalite_tx_commits_total",
			Help: "Committed transactions",
		})
		metrics.commitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datalite_tx_commit_errors_total",
			Help: "Failed transactions by error kind",
		}, []string{"kind"})
		metrics.datomsAdded = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datalite_tx_datoms_added_total",
			Help: "Datoms asserted across all commits",
		})
		metrics.datomsRetracted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datalite_tx_datoms_retracted_total",
			Help: "Datoms retracted across all commits",
		})
		metrics.commitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "datalite_tx_commit_duration_seconds",
			Help:    "Wall time per committed transaction",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			metrics.commits,
			metrics.commitErrors,
			metrics.datomsAdded,
			metrics.datomsRetracted,
			metrics.commitDuration,
		)
	})
}

func txMetricsOnCommit(added, retracted int, elapsed time.Duration) {
	metrics.commits.Inc()
	metrics.datomsAdded.Add(float64(added))
	metrics.datomsRetracted.Add(float64(retracted))
	metrics.commitDuration.Observe(elapsed.Seconds())
}

func txMetricsOnError(err error) {
	kind := "storage"
	switch {
	case IsSyntaxError(err):
		kind = "syntax"
	case IsSchemaError(err):
		kind = "schema"
	default:
		if k, ok := IsConstraintViolation(err); ok {
			kind = "constraint_" + string(k)
		}
	}
	metrics.commitErrors.WithLabelValues(kind).Inc()
}
