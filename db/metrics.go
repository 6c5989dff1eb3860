package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomad",
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Buckets:   []float64{0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
	}, []string{"query"})
	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomad",
		Subsystem: "db",
		Name:      "query_errors_total",
	}, []string{"query"})
)

func ObserveDuration(query string) func() time.Duration {
	return prometheus.NewTimer(QueryDurations.WithLabelValues(query)).ObserveDuration
}

// observeQuery times query, the returned func stops the timer and counts err
// unless it is a not found result.
func observeQuery(query string) func(err error) error {
	stop := ObserveDuration(query)
	return func(err error) error {
		stop()
		if err != nil && !IsNotFound(err) {
			QueryErrors.WithLabelValues(query).Inc()
		}
		return err
	}
}
