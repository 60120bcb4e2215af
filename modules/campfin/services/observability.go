package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/nmcampfin/campfin-etl/pkg/composables"
)

var tracer = otel.Tracer("github.com/nmcampfin/campfin-etl/modules/campfin/services")

var (
	importRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campfin",
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Total number of import runs broken down by kind and status.",
	}, []string{"kind", "status"})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campfin",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Total number of imported rows broken down by kind and outcome.",
	}, []string{"kind", "outcome"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "campfin",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Wall time of import runs by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"kind"})

	filingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campfin",
		Subsystem: "filing",
		Name:      "transitions_total",
		Help:      "Total number of filing lifecycle transitions broken down by transition.",
	}, []string{"transition"})
)

func recordSummary(s *Summary, seconds float64) {
	importRuns.WithLabelValues(s.Kind, string(s.Status)).Inc()
	importDuration.WithLabelValues(s.Kind).Observe(seconds)
	for outcome, n := range map[string]int{
		"created":   s.Created,
		"updated":   s.Updated,
		"unchanged": s.Unchanged,
		"linked":    s.Linked,
		"skipped":   s.Skipped,
		"deleted":   s.Deleted,
	} {
		if n > 0 {
			importRows.WithLabelValues(s.Kind, outcome).Add(float64(n))
		}
	}
}

func logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	logger := composables.UseLogger(ctx)
	if logger == nil {
		return
	}
	if runID := composables.UseRunID(ctx); runID != "" {
		fields["run_id"] = runID
	}
	logger.WithFields(fields).Log(level, msg)
}
