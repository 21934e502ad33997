package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/moe-bench/moe-bench/internal/client"
	"github.com/moe-bench/moe-bench/internal/logging"
	"github.com/moe-bench/moe-bench/internal/metrics"
	"github.com/moe-bench/moe-bench/internal/models"
	"github.com/moe-bench/moe-bench/internal/monitor"
	"github.com/moe-bench/moe-bench/internal/prompts"
)

// Workload parameters. The fan-out is one request per category per
// iteration, all in flight at once.
const (
	basicPromptsPerCategory = 2
	basicMaxTokens          = 200

	longFormMaxTokens = 2000

	concurrentIterations = 5
	concurrentMaxTokens  = 300
)

// Placeholder quality scores until response scoring lands.
// TODO: replace with the rubric-based scorer once the judge endpoint ships.
const (
	basicQualityScore      = 0.9
	longFormQualityScore   = 0.85
	concurrentQualityScore = 0.8
)

// Generator issues one generation request and folds every failure into
// the result. client.Client satisfies this.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, maxTokens int, stream bool) client.GenerationResult
}

// ResourceMonitor brackets a scenario with a sampling window.
// monitor.Monitor satisfies this.
type ResourceMonitor interface {
	Start(ctx context.Context)
	Stop() monitor.Peak
}

// Runner executes stress scenarios against one loaded model
type Runner struct {
	gen    Generator
	mon    ResourceMonitor
	logger *slog.Logger
}

// NewRunner creates a scenario runner. mon may be nil, in which case
// peak figures stay zero.
func NewRunner(gen Generator, mon ResourceMonitor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{gen: gen, mon: mon, logger: logger}
}

// Run dispatches a scenario by name
func (r *Runner) Run(ctx context.Context, name string, model models.ModelConfig) (TestMetrics, error) {
	switch name {
	case Basic:
		return r.RunBasic(ctx, model), nil
	case LongForm:
		return r.RunLongForm(ctx, model), nil
	case Concurrent:
		return r.RunConcurrent(ctx, model), nil
	}
	return TestMetrics{}, fmt.Errorf("unknown scenario %q", name)
}

// RunBasic issues a small sequential batch of prompts across every
// category to establish baseline functionality.
func (r *Runner) RunBasic(ctx context.Context, model models.ModelConfig) TestMetrics {
	ctx = logging.WithScenario(ctx, Basic)
	log := r.logger.With(slog.String("scenario", Basic))
	log.Info("running basic performance scenario", slog.String("model", model.DisplayName))

	start := time.Now()
	r.startMonitor(ctx)

	var results []client.GenerationResult
	for _, category := range prompts.Categories() {
		for _, prompt := range prompts.ForCategory(category, basicPromptsPerCategory) {
			if ctx.Err() != nil {
				break
			}
			res := r.gen.Generate(ctx, model.Name, prompt, basicMaxTokens, false)
			r.record(model.Name, Basic, res)
			results = append(results, res)

			if !res.Success {
				log.Warn("request failed",
					slog.String("category", string(category)),
					slog.String("error", res.Error))
			}
		}
	}

	return r.finalize(model, Basic, start, time.Since(start).Seconds(), results, basicQualityScore)
}

// RunLongForm issues the long-form prompt set with a large token budget
// to exercise sustained generation.
func (r *Runner) RunLongForm(ctx context.Context, model models.ModelConfig) TestMetrics {
	ctx = logging.WithScenario(ctx, LongForm)
	log := r.logger.With(slog.String("scenario", LongForm))
	log.Info("running long-form generation scenario", slog.String("model", model.DisplayName))

	start := time.Now()
	r.startMonitor(ctx)

	var results []client.GenerationResult
	for i, prompt := range prompts.LongForm() {
		if ctx.Err() != nil {
			break
		}
		res := r.gen.Generate(ctx, model.Name, prompt, longFormMaxTokens, true)
		r.record(model.Name, LongForm, res)
		results = append(results, res)

		log.Info("long-form prompt finished",
			slog.Int("prompt", i+1),
			slog.Bool("success", res.Success),
			slog.Int("tokens", res.Tokens),
			slog.Duration("response_time", res.ResponseTime))
	}

	return r.finalize(model, LongForm, start, time.Since(start).Seconds(), results, longFormQualityScore)
}

// RunConcurrent issues the whole batch simultaneously: one request per
// prompt category per iteration, each in its own goroutine. Total time
// is the slowest successful response, never a sum, so throughput
// reflects wall-clock parallelism.
func (r *Runner) RunConcurrent(ctx context.Context, model models.ModelConfig) TestMetrics {
	ctx = logging.WithScenario(ctx, Concurrent)
	log := r.logger.With(slog.String("scenario", Concurrent))

	batch := concurrentBatch()
	log.Info("running concurrent load scenario",
		slog.String("model", model.DisplayName),
		slog.Int("requests", len(batch)))

	start := time.Now()
	r.startMonitor(ctx)

	var results []client.GenerationResult
	if ctx.Err() == nil {
		results = make([]client.GenerationResult, len(batch))

		var wg sync.WaitGroup
		for i, prompt := range batch {
			wg.Add(1)
			go func(i int, prompt string) {
				defer wg.Done()
				res := r.gen.Generate(ctx, model.Name, prompt, concurrentMaxTokens, false)
				r.record(model.Name, Concurrent, res)
				results[i] = res
			}(i, prompt)
		}
		wg.Wait()
	}

	// Max over successful responses only; zero when nothing succeeded.
	var totalTime float64
	for _, res := range results {
		if res.Success && res.ResponseTime.Seconds() > totalTime {
			totalTime = res.ResponseTime.Seconds()
		}
	}

	return r.finalize(model, Concurrent, start, totalTime, results, concurrentQualityScore)
}

// concurrentBatch builds the fan-out prompt set: every category
// contributes one prompt per iteration, cycling through its catalog.
func concurrentBatch() []string {
	var batch []string
	for i := 0; i < concurrentIterations; i++ {
		for _, category := range prompts.Categories() {
			ps := prompts.ForCategory(category, 0)
			batch = append(batch, fmt.Sprintf("Request %d: %s", i, ps[i%len(ps)]))
		}
	}
	return batch
}

// startMonitor opens a sampling window if a monitor is attached
func (r *Runner) startMonitor(ctx context.Context) {
	if r.mon != nil {
		r.mon.Start(ctx)
	}
}

// record feeds one request outcome into the prometheus counters
func (r *Runner) record(model, scenario string, res client.GenerationResult) {
	metrics.RecordRequest(model, scenario, res.Success, res.ResponseTime)
	if res.Success {
		metrics.RecordTokens(model, scenario, res.Tokens)
	}
}

// finalize closes the sampling window and folds per-request outcomes
// into the scenario record
func (r *Runner) finalize(model models.ModelConfig, name string, start time.Time, totalTimeSeconds float64, results []client.GenerationResult, quality float64) TestMetrics {
	var peak monitor.Peak
	if r.mon != nil {
		peak = r.mon.Stop()
	}

	tokens, tps, avgMS, successRate := aggregate(results, totalTimeSeconds)

	status := "completed"
	if successRate == 0 {
		status = "failed"
	}
	metrics.RecordScenario(model.Name, name, status)

	r.logger.Info("scenario finished",
		slog.String("model", model.Name),
		slog.String("scenario", name),
		slog.Int("tokens", tokens),
		slog.Float64("tokens_per_second", tps),
		slog.Float64("success_rate", successRate))

	return TestMetrics{
		ModelName:             model.Name,
		ScenarioName:          name,
		StartTime:             start,
		EndTime:               time.Now(),
		TokensGenerated:       tokens,
		TotalTimeSeconds:      totalTimeSeconds,
		TokensPerSecond:       tps,
		PeakGPUMemoryMB:       peak.GPUMemoryMB,
		PeakHostMemoryMB:      peak.HostMemoryDeltaMB,
		AverageResponseTimeMS: avgMS,
		SuccessRate:           successRate,
		QualityScore:          quality,
	}
}
