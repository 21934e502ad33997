// Package metrics defines prometheus instrumentation for the stress harness.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts generation requests by model, scenario, and outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moebench_requests_total",
			Help: "Total number of generation requests by model, scenario, and outcome",
		},
		[]string{"model", "scenario", "outcome"},
	)

	// RequestDuration tracks generation request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moebench_request_duration_seconds",
			Help:    "Duration of generation requests by model and scenario",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12), // 250ms to ~17min
		},
		[]string{"model", "scenario"},
	)

	// TokensGenerated counts tokens produced across successful requests
	TokensGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moebench_tokens_generated_total",
			Help: "Total approximate tokens generated by model and scenario",
		},
		[]string{"model", "scenario"},
	)

	// ScenariosTotal counts scenario runs by model, scenario, and status
	ScenariosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moebench_scenarios_total",
			Help: "Total number of scenario runs by model, scenario, and status",
		},
		[]string{"model", "scenario", "status"},
	)

	// ServerStartsTotal counts inference server start attempts by outcome
	ServerStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moebench_server_starts_total",
			Help: "Total number of inference server start attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ServerStartupDuration tracks how long server startup took until healthy
	ServerStartupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moebench_server_startup_duration_seconds",
			Help:    "Duration from process spawn until a healthy response",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
	)

	// SamplingFailures counts resource sampling failures that were skipped
	SamplingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moebench_sampling_failures_total",
			Help: "Total number of skipped resource sampling failures by source",
		},
		[]string{"source"},
	)
)

// RecordRequest records the outcome and latency of one generation request
func RecordRequest(model, scenario string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	RequestsTotal.WithLabelValues(model, scenario, outcome).Inc()
	RequestDuration.WithLabelValues(model, scenario).Observe(duration.Seconds())
}

// RecordTokens adds to the generated-token counter
func RecordTokens(model, scenario string, tokens int) {
	TokensGenerated.WithLabelValues(model, scenario).Add(float64(tokens))
}

// RecordScenario records a completed scenario run
func RecordScenario(model, scenario, status string) {
	ScenariosTotal.WithLabelValues(model, scenario, status).Inc()
}

// RecordServerStart records a server start attempt
func RecordServerStart(success bool, startupTime time.Duration) {
	if success {
		ServerStartsTotal.WithLabelValues("success").Inc()
		ServerStartupDuration.Observe(startupTime.Seconds())
		return
	}
	ServerStartsTotal.WithLabelValues("failure").Inc()
}

// RecordSamplingFailure records a skipped resource sample
func RecordSamplingFailure(source string) {
	SamplingFailures.WithLabelValues(source).Inc()
}
