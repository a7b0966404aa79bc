package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tandem"

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by final job status",
		},
		[]string{"status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of analysis runs",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300, 600},
		},
	)

	analyzerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "duration_seconds",
			Help:      "Duration of analyzer branches",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 180},
		},
		[]string{"analyzer"},
	)

	analyzerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "errors_total",
			Help:      "Analyzer branch failures, split by timeout",
		},
		[]string{"analyzer", "timeout"},
	)

	findingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings after deduplication by source and severity",
		},
		[]string{"source", "severity"},
	)

	skippedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_records_total",
			Help:      "Raw analyzer records dropped during normalization",
		},
		[]string{"source"},
	)

	fixesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fixes",
			Name:      "total",
			Help:      "Fix backfill outcomes",
		},
		[]string{"outcome"},
	)

	qualityGate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_gate_total",
			Help:      "Quality gate verdicts",
		},
		[]string{"gate"},
	)

	jobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Runs currently executing",
		},
	)
)

// RunStarted marks a run as in flight and returns a func that records its end.
func RunStarted() func(status string) {
	start := time.Now()
	jobsInFlight.Inc()
	return func(status string) {
		jobsInFlight.Dec()
		runsTotal.WithLabelValues(status).Inc()
		runDuration.Observe(time.Since(start).Seconds())
	}
}

// ObserveAnalyzer records one analyzer branch.
func ObserveAnalyzer(analyzer string, d time.Duration, failed, timedOut bool) {
	analyzerDuration.WithLabelValues(analyzer).Observe(d.Seconds())
	if failed {
		timeout := "false"
		if timedOut {
			timeout = "true"
		}
		analyzerErrors.WithLabelValues(analyzer, timeout).Inc()
	}
}

// AddFinding counts one final finding.
func AddFinding(source, severity string) {
	findingsTotal.WithLabelValues(source, severity).Inc()
}

// AddSkipped counts records dropped during normalization.
func AddSkipped(source string, n int) {
	if n > 0 {
		skippedRecords.WithLabelValues(source).Add(float64(n))
	}
}

// AddFixes records backfill outcomes.
func AddFixes(generated, failed, skipped int) {
	fixesTotal.WithLabelValues("generated").Add(float64(generated))
	fixesTotal.WithLabelValues("failed").Add(float64(failed))
	fixesTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// AddGate counts a quality gate verdict.
func AddGate(gate string) {
	qualityGate.WithLabelValues(gate).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
