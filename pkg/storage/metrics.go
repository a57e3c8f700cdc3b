package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "profiledb",
		Subsystem: "storage",
		Name:      "query_duration_seconds",
		Help:      "Duration of statements executed against the run store.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"driver", "operation"})

	queryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "profiledb",
		Subsystem: "storage",
		Name:      "query_errors_total",
		Help:      "Statements that returned an error, by classified kind.",
	}, []string{"driver", "operation", "kind"})
)

func observe(driver, operation string, start time.Time, err error) {
	queryDuration.WithLabelValues(driver, operation).
		Observe(time.Since(start).Seconds())

	if err != nil {
		queryErrors.WithLabelValues(driver, operation, errorKind(err)).Inc()
	}
}
