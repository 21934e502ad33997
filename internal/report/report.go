// Package report aggregates scenario results into comparison reports:
// JSON, Markdown, HTML, and a throughput chart.
package report

import (
	"sort"
	"time"

	"github.com/moe-bench/moe-bench/internal/scenario"
)

// ReportVersion is stamped into every generated report
const ReportVersion = "1.0.0"

// Report is a complete cross-model comparison report
type Report struct {
	GeneratedAt   time.Time              `json:"generated_at"`
	ReportVersion string                 `json:"report_version"`
	RunID         string                 `json:"run_id,omitempty"`
	Summary       Summary                `json:"summary"`
	Comparisons   []Comparison           `json:"comparisons"`
	Results       []scenario.TestMetrics `json:"results"`
}

// Summary contains aggregate statistics over all results
type Summary struct {
	TotalResults int `json:"total_results"`
	ModelsTested int `json:"models_tested"`
	ScenariosRun int `json:"scenarios_run"`
	TotalTokens  int `json:"total_tokens"`
	DateRange    struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"date_range"`
}

// Comparison aggregates one model/scenario pair across its runs
type Comparison struct {
	ModelName        string  `json:"model_name"`
	ScenarioName     string  `json:"scenario_name"`
	Runs             int     `json:"runs"`
	AvgTPS           float64 `json:"avg_tps"`
	AvgSuccessRate   float64 `json:"avg_success_rate"`
	AvgResponseMS    float64 `json:"avg_response_ms"`
	MaxPeakGPUMB     float64 `json:"max_peak_gpu_mb"`
	MaxPeakHostMB    float64 `json:"max_peak_host_mb"`
	TotalTokens      int     `json:"total_tokens"`
	AvgQualityScore  float64 `json:"avg_quality_score"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
}

// Build assembles a report from raw scenario results. Input order does
// not affect the output: comparisons are keyed by model and scenario
// and sorted, so two permutations of the same results produce the same
// report body.
func Build(runID string, results []scenario.TestMetrics) *Report {
	r := &Report{
		GeneratedAt:   time.Now(),
		ReportVersion: ReportVersion,
		RunID:         runID,
		Results:       results,
		Comparisons:   compare(results),
		Summary:       summarize(results),
	}
	return r
}

func summarize(results []scenario.TestMetrics) Summary {
	var s Summary
	s.TotalResults = len(results)

	models := make(map[string]bool)
	scenarios := make(map[string]bool)

	for _, r := range results {
		models[r.ModelName] = true
		scenarios[r.ScenarioName] = true
		s.TotalTokens += r.TokensGenerated

		if s.DateRange.Start.IsZero() || r.StartTime.Before(s.DateRange.Start) {
			s.DateRange.Start = r.StartTime
		}
		if s.DateRange.End.IsZero() || r.EndTime.After(s.DateRange.End) {
			s.DateRange.End = r.EndTime
		}
	}

	s.ModelsTested = len(models)
	s.ScenariosRun = len(scenarios)
	return s
}

func compare(results []scenario.TestMetrics) []Comparison {
	type key struct{ model, scenario string }
	grouped := make(map[key][]scenario.TestMetrics)
	for _, r := range results {
		k := key{r.ModelName, r.ScenarioName}
		grouped[k] = append(grouped[k], r)
	}

	out := make([]Comparison, 0, len(grouped))
	for k, group := range grouped {
		c := Comparison{
			ModelName:    k.model,
			ScenarioName: k.scenario,
			Runs:         len(group),
		}
		for _, r := range group {
			c.AvgTPS += r.TokensPerSecond
			c.AvgSuccessRate += r.SuccessRate
			c.AvgResponseMS += r.AverageResponseTimeMS
			c.AvgQualityScore += r.QualityScore
			c.TotalTokens += r.TokensGenerated
			c.TotalTimeSeconds += r.TotalTimeSeconds
			if r.PeakGPUMemoryMB > c.MaxPeakGPUMB {
				c.MaxPeakGPUMB = r.PeakGPUMemoryMB
			}
			if r.PeakHostMemoryMB > c.MaxPeakHostMB {
				c.MaxPeakHostMB = r.PeakHostMemoryMB
			}
		}
		n := float64(len(group))
		c.AvgTPS /= n
		c.AvgSuccessRate /= n
		c.AvgResponseMS /= n
		c.AvgQualityScore /= n
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ModelName != out[j].ModelName {
			return out[i].ModelName < out[j].ModelName
		}
		return out[i].ScenarioName < out[j].ScenarioName
	})
	return out
}
