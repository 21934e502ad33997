package scenario

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moe-bench/moe-bench/internal/client"
	"github.com/moe-bench/moe-bench/internal/models"
	"github.com/moe-bench/moe-bench/internal/monitor"
	"github.com/moe-bench/moe-bench/internal/prompts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testModel() models.ModelConfig {
	return models.ModelConfig{
		Name:          "test-model",
		DisplayName:   "Test Model",
		WeightsPath:   "/tmp/test-model.gguf",
		ExpertsTotal:  8,
		ExpertsActive: 2,
		ContextLength: 4096,
	}
}

// fakeGenerator runs the supplied function for every request and counts calls
type fakeGenerator struct {
	calls int64
	fn    func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult
}

func (f *fakeGenerator) Generate(ctx context.Context, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
	n := atomic.AddInt64(&f.calls, 1)
	return f.fn(n, model, prompt, maxTokens, stream)
}

// fakeMonitor records window open/close and returns a fixed peak
type fakeMonitor struct {
	started int
	stopped int
	peak    monitor.Peak
}

func (f *fakeMonitor) Start(ctx context.Context) { f.started++ }
func (f *fakeMonitor) Stop() monitor.Peak {
	f.stopped++
	return f.peak
}

func successResult(tokens int, rt time.Duration) client.GenerationResult {
	return client.GenerationResult{Success: true, Tokens: tokens, ResponseTime: rt}
}

func failureResult() client.GenerationResult {
	return client.GenerationResult{Success: false, Error: "connection reset"}
}

func TestAggregate(t *testing.T) {
	t.Run("seven of ten successes is 0.7", func(t *testing.T) {
		var results []client.GenerationResult
		for i := 0; i < 7; i++ {
			results = append(results, successResult(50, 100*time.Millisecond))
		}
		for i := 0; i < 3; i++ {
			results = append(results, failureResult())
		}

		tokens, _, _, rate := aggregate(results, 10)
		assert.Equal(t, 350, tokens)
		assert.InDelta(t, 0.7, rate, 1e-9)
	})

	t.Run("throughput over wall time", func(t *testing.T) {
		// 25 issued, 20 succeed with 210 tokens each, 12.4s of wall time.
		var results []client.GenerationResult
		for i := 0; i < 20; i++ {
			results = append(results, successResult(210, 2*time.Second))
		}
		for i := 0; i < 5; i++ {
			results = append(results, failureResult())
		}

		tokens, tps, avgMS, rate := aggregate(results, 12.4)
		assert.Equal(t, 4200, tokens)
		assert.InDelta(t, 338.709, tps, 0.01)
		assert.InDelta(t, 0.8, rate, 1e-9)
		assert.InDelta(t, 2000, avgMS, 0.001)
	})

	t.Run("zero elapsed time yields zero throughput", func(t *testing.T) {
		_, tps, _, _ := aggregate([]client.GenerationResult{successResult(100, 0)}, 0)
		assert.Zero(t, tps)
	})

	t.Run("no requests yields zeros", func(t *testing.T) {
		tokens, tps, avgMS, rate := aggregate(nil, 5)
		assert.Zero(t, tokens)
		assert.Zero(t, tps)
		assert.Zero(t, avgMS)
		assert.Zero(t, rate)
	})

	t.Run("failed requests contribute no tokens", func(t *testing.T) {
		results := []client.GenerationResult{
			successResult(100, time.Second),
			{Success: false, Tokens: 999, Error: "timeout"},
		}
		tokens, _, _, rate := aggregate(results, 1)
		assert.Equal(t, 100, tokens)
		assert.InDelta(t, 0.5, rate, 1e-9)
	})
}

func TestRunBasic(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		assert.Equal(t, "test-model", model)
		assert.Equal(t, basicMaxTokens, maxTokens)
		assert.False(t, stream)
		if call%4 == 0 {
			return failureResult()
		}
		return successResult(40, 50*time.Millisecond)
	}}

	r := NewRunner(gen, nil, testLogger())
	m := r.RunBasic(context.Background(), testModel())

	// Two prompts per category across five categories.
	assert.Equal(t, int64(10), atomic.LoadInt64(&gen.calls))
	assert.Equal(t, "test-model", m.ModelName)
	assert.Equal(t, Basic, m.ScenarioName)
	assert.Equal(t, 8*40, m.TokensGenerated)
	assert.InDelta(t, 0.8, m.SuccessRate, 1e-9)
	assert.Equal(t, basicQualityScore, m.QualityScore)
	assert.False(t, m.StartTime.IsZero())
	assert.False(t, m.EndTime.After(time.Now()))
}

func TestRunBasic_PartialFailureRate(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		if call > 7 {
			return failureResult()
		}
		return successResult(10, time.Millisecond)
	}}

	r := NewRunner(gen, nil, testLogger())
	m := r.RunBasic(context.Background(), testModel())

	assert.InDelta(t, 0.7, m.SuccessRate, 1e-9)
}

func TestRunLongForm(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		assert.Equal(t, longFormMaxTokens, maxTokens)
		assert.True(t, stream)
		return successResult(1500, 200*time.Millisecond)
	}}

	r := NewRunner(gen, nil, testLogger())
	m := r.RunLongForm(context.Background(), testModel())

	assert.Equal(t, int64(3), atomic.LoadInt64(&gen.calls))
	assert.Equal(t, LongForm, m.ScenarioName)
	assert.Equal(t, 4500, m.TokensGenerated)
	assert.InDelta(t, 1.0, m.SuccessRate, 1e-9)
	assert.Greater(t, m.TokensPerSecond, 0.0)
}

func TestRunConcurrent_IssuesFullBatchWithVariedPrompts(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		assert.Equal(t, concurrentMaxTokens, maxTokens)
		assert.False(t, stream)
		mu.Lock()
		seen = append(seen, prompt)
		mu.Unlock()
		return successResult(20, 5*time.Millisecond)
	}}

	r := NewRunner(gen, nil, testLogger())
	m := r.RunConcurrent(context.Background(), testModel())

	// One request per category per iteration.
	want := concurrentIterations * len(prompts.Categories())
	assert.Equal(t, int64(want), atomic.LoadInt64(&gen.calls))
	assert.Equal(t, want*20, m.TokensGenerated)
	assert.InDelta(t, 1.0, m.SuccessRate, 1e-9)

	distinct := make(map[string]struct{}, len(seen))
	for _, p := range seen {
		assert.True(t, strings.HasPrefix(p, "Request "), "prompt %q", p)
		distinct[p] = struct{}{}
	}
	assert.Len(t, distinct, want, "every request carries its own prompt")
}

func TestRunConcurrent_WholeBatchInFlightAtOnce(t *testing.T) {
	batchSize := concurrentIterations * len(prompts.Categories())
	perRequest := 20 * time.Millisecond

	var mu sync.Mutex
	arrived := 0
	allIn := make(chan struct{})

	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		mu.Lock()
		arrived++
		if arrived == batchSize {
			close(allIn)
		}
		mu.Unlock()

		// Every request blocks until the whole batch has been issued.
		select {
		case <-allIn:
		case <-time.After(2 * time.Second):
		}
		time.Sleep(perRequest)
		return successResult(10, perRequest)
	}}

	r := NewRunner(gen, nil, testLogger())
	m := r.RunConcurrent(context.Background(), testModel())

	select {
	case <-allIn:
	default:
		t.Fatal("batch was not fully in flight at once")
	}

	// Total time is the slowest single response, not the sum of all of them.
	sum := float64(batchSize) * perRequest.Seconds()
	assert.InDelta(t, perRequest.Seconds(), m.TotalTimeSeconds, 1e-9)
	assert.Less(t, m.TotalTimeSeconds, sum/2)
}

func TestRunConcurrent_TotalTimeIgnoresFailedResponses(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		if call == 1 {
			// A slow failure must not stretch the batch time.
			return client.GenerationResult{Success: false, ResponseTime: time.Hour, Error: "timeout"}
		}
		return successResult(100, time.Duration(call)*100*time.Millisecond)
	}}

	r := NewRunner(gen, nil, testLogger())
	m := r.RunConcurrent(context.Background(), testModel())

	assert.InDelta(t, 2.5, m.TotalTimeSeconds, 1e-9)
	assert.InDelta(t, 24.0/25.0, m.SuccessRate, 1e-9)
}

func TestRunConcurrent_AllFailuresStillProduceRecord(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		return failureResult()
	}}

	r := NewRunner(gen, nil, testLogger())
	m := r.RunConcurrent(context.Background(), testModel())

	assert.Equal(t, Concurrent, m.ScenarioName)
	assert.Zero(t, m.TokensGenerated)
	// No successful response means no elapsed batch time and no throughput.
	assert.Zero(t, m.TotalTimeSeconds)
	assert.Zero(t, m.TokensPerSecond)
	assert.Zero(t, m.SuccessRate)
	assert.Equal(t, concurrentQualityScore, m.QualityScore)
}

func TestRunConcurrent_CancelledContextIssuesNothing(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		return successResult(10, time.Millisecond)
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(gen, nil, testLogger())
	m := r.RunConcurrent(ctx, testModel())

	assert.Zero(t, atomic.LoadInt64(&gen.calls))
	assert.Zero(t, m.TotalTimeSeconds)
	assert.Zero(t, m.SuccessRate)
}

func TestRunner_MonitorWindowBracketsScenario(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		return successResult(10, time.Millisecond)
	}}
	mon := &fakeMonitor{peak: monitor.Peak{GPUMemoryMB: 1234, HostMemoryDeltaMB: 55}}

	r := NewRunner(gen, mon, testLogger())
	m := r.RunBasic(context.Background(), testModel())

	assert.Equal(t, 1, mon.started)
	assert.Equal(t, 1, mon.stopped)
	assert.Equal(t, 1234.0, m.PeakGPUMemoryMB)
	assert.Equal(t, 55.0, m.PeakHostMemoryMB)
}

func TestRunner_CancelledContextStopsIssuing(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		return successResult(10, time.Millisecond)
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(gen, nil, testLogger())
	m := r.RunBasic(ctx, testModel())

	assert.Zero(t, atomic.LoadInt64(&gen.calls))
	assert.Zero(t, m.SuccessRate)
	assert.Equal(t, Basic, m.ScenarioName)
}

func TestRun_Dispatch(t *testing.T) {
	gen := &fakeGenerator{fn: func(call int64, model, prompt string, maxTokens int, stream bool) client.GenerationResult {
		return successResult(10, time.Millisecond)
	}}
	r := NewRunner(gen, nil, testLogger())

	for _, name := range Names() {
		m, err := r.Run(context.Background(), name, testModel())
		require.NoError(t, err)
		assert.Equal(t, name, m.ScenarioName)
	}

	_, err := r.Run(context.Background(), "chaos", testModel())
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	for _, name := range Names() {
		assert.True(t, Known(name))
	}
	assert.False(t, Known("bogus"))
	assert.False(t, Known(""))
}
