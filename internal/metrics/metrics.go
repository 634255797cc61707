package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds the Prometheus collectors for the process_data
// pipeline.
type PipelineMetrics struct {
	Requests           *prometheus.CounterVec
	Failures           *prometheus.CounterVec
	ComputationSeconds prometheus.Histogram
	AttestationsSigned *prometheus.CounterVec
	RecordFailures     prometheus.Counter
	InFlight           prometheus.Gauge
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// NewPipelineMetrics registers the collectors on first use and returns the
// same instance afterwards.
func NewPipelineMetrics() *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = &PipelineMetrics{
			Requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "nautilus",
					Subsystem: "process_data",
					Name:      "requests_total",
					Help:      "Total process_data requests by outcome",
				},
				[]string{"outcome"},
			),
			Failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "nautilus",
					Subsystem: "process_data",
					Name:      "failures_total",
					Help:      "Failed process_data requests by stage and error kind",
				},
				[]string{"stage", "kind"},
			),
			ComputationSeconds: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "nautilus",
					Subsystem: "process_data",
					Name:      "computation_duration_seconds",
					Help:      "Wall time of the external computation process",
					Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
				},
			),
			AttestationsSigned: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "nautilus",
					Subsystem: "attestation",
					Name:      "signed_total",
					Help:      "Total attestations signed by intent scope",
				},
				[]string{"intent"},
			),
			RecordFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "nautilus",
					Subsystem: "attestation",
					Name:      "record_failures_total",
					Help:      "Signed attestations that could not be written to the ledger",
				},
			),
			InFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "nautilus",
					Subsystem: "process_data",
					Name:      "in_flight",
					Help:      "Computations currently running",
				},
			),
		}
	})
	return pipelineMetrics
}
