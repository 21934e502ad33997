// Package scenario implements the stress workloads run against one
// loaded model: basic prompt coverage, long-form generation, and
// concurrent fan-out.
package scenario

import (
	"time"

	"github.com/moe-bench/moe-bench/internal/client"
)

// Scenario names as they appear in configuration, results, and reports.
const (
	Basic      = "basic"
	LongForm   = "longform"
	Concurrent = "concurrent"
)

// Names returns the known scenario names in execution order
func Names() []string {
	return []string{Basic, LongForm, Concurrent}
}

// Known reports whether name is a recognized scenario
func Known(name string) bool {
	switch name {
	case Basic, LongForm, Concurrent:
		return true
	}
	return false
}

// TestMetrics is the aggregate outcome of one scenario run against one
// model. A record is produced for every run, including total failures.
type TestMetrics struct {
	ModelName             string    `json:"model_name"`
	ScenarioName          string    `json:"scenario_name"`
	StartTime             time.Time `json:"start_time"`
	EndTime               time.Time `json:"end_time"`
	TokensGenerated       int       `json:"tokens_generated"`
	TotalTimeSeconds      float64   `json:"total_time_seconds"`
	TokensPerSecond       float64   `json:"tokens_per_second"`
	PeakGPUMemoryMB       float64   `json:"peak_gpu_memory_mb"`
	PeakHostMemoryMB      float64   `json:"peak_host_memory_mb"`
	AverageResponseTimeMS float64   `json:"average_response_time_ms"`
	SuccessRate           float64   `json:"success_rate"`
	QualityScore          float64   `json:"quality_score"`
}

// aggregate folds per-request outcomes into the derived scenario
// figures. Throughput is zero when no time elapsed, the success rate is
// over issued requests, and the average response time covers successful
// requests only.
func aggregate(results []client.GenerationResult, totalTimeSeconds float64) (tokens int, tps, avgResponseMS, successRate float64) {
	var (
		successes    int
		responseTime time.Duration
	)
	for _, res := range results {
		if !res.Success {
			continue
		}
		successes++
		tokens += res.Tokens
		responseTime += res.ResponseTime
	}

	if totalTimeSeconds > 0 {
		tps = float64(tokens) / totalTimeSeconds
	}
	if successes > 0 {
		avgResponseMS = float64(responseTime.Milliseconds()) / float64(successes)
	}
	if len(results) > 0 {
		successRate = float64(successes) / float64(len(results))
	}
	return tokens, tps, avgResponseMS, successRate
}
