// Package metrics provides Prometheus metrics for provisioning runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

var (
	// RunsTotal counts orchestrator runs by flavor and outcome.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "silo_provisioner",
			Subsystem: "run",
			Name:      "total",
			Help:      "Total number of provisioning runs",
		},
		[]string{"flavor", "result"},
	)

	// RecordsTotal counts per-record outcomes; kind is the result entry tag.
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "silo_provisioner",
			Subsystem: "record",
			Name:      "total",
			Help:      "Total number of provisioned records by outcome kind",
		},
		[]string{"flavor", "kind"},
	)

	// AuthAttemptsTotal counts authentication attempts against each service.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "silo_provisioner",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total number of authentication attempts",
		},
		[]string{"service", "result"},
	)

	// APICallDuration tracks request latency per service endpoint.
	APICallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "silo_provisioner",
			Subsystem: "api",
			Name:      "call_duration_seconds",
			Help:      "Duration of service API calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "path", "status"},
	)
)

// Registry holds every collector above. It is separate from the global default registry
// so that serve mode exposes only provisioning metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		RunsTotal,
		RecordsTotal,
		AuthAttemptsTotal,
		APICallDuration,
	)
}

func RecordRun(flavor string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	RunsTotal.WithLabelValues(flavor, result).Inc()
}

// RecordSkippedRun counts a run whose settings task was disabled.
func RecordSkippedRun(flavor string) {
	RunsTotal.WithLabelValues(flavor, ResultSkipped).Inc()
}

func RecordEntry(flavor, kind string) {
	RecordsTotal.WithLabelValues(flavor, kind).Inc()
}

func RecordAuthAttempt(service string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	AuthAttemptsTotal.WithLabelValues(service, result).Inc()
}

func ObserveAPICall(service, path, status string, d time.Duration) {
	APICallDuration.WithLabelValues(service, path, status).Observe(d.Seconds())
}
