package quarantine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scanguard",
		Subsystem: "quarantine",
		Name:      "operations_total",
		Help:      "Quarantine operations by kind and outcome.",
	}, []string{"op", "result"})

	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scanguard",
		Subsystem: "quarantine",
		Name:      "reconcile_runs_total",
		Help:      "Completed reconciliation passes.",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scanguard",
		Subsystem: "quarantine",
		Name:      "reconcile_issues_total",
		Help:      "Issues found by reconciliation, by type.",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scanguard",
		Subsystem: "quarantine",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconciliation passes.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

func observeOp(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}
