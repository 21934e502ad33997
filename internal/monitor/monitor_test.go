package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseGPUMemory(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{name: "single gpu", output: "8192\n", want: 8192},
		{name: "multiple gpus summed", output: "8192\n4096\n", want: 12288},
		{name: "whitespace tolerated", output: "  2048  \n", want: 2048},
		{name: "empty output", output: "", wantErr: true},
		{name: "garbage", output: "not-a-number\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGPUMemory(tt.output)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonitor_PeakFolding(t *testing.T) {
	readings := []float64{100, 900, 300}
	var idx int64

	m := New(testLogger(),
		WithSampleInterval(5*time.Millisecond),
		WithGPUSampler(func(ctx context.Context) (float64, error) {
			i := atomic.AddInt64(&idx, 1) - 1
			return readings[i%int64(len(readings))], nil
		}),
		WithHostSampler(func() (float64, error) { return 1000, nil }),
	)

	m.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	peak := m.Stop()

	// Peak must be >= every individual sample taken in the window.
	assert.Equal(t, 900.0, peak.GPUMemoryMB)
}

func TestMonitor_NoSuccessfulSampleReturnsZero(t *testing.T) {
	m := New(testLogger(),
		WithSampleInterval(5*time.Millisecond),
		WithGPUSampler(func(ctx context.Context) (float64, error) {
			return 0, errors.New("nvidia-smi not found")
		}),
		WithHostSampler(func() (float64, error) {
			return 0, errors.New("unavailable")
		}),
	)

	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	peak := m.Stop()

	assert.Zero(t, peak.GPUMemoryMB)
	assert.Zero(t, peak.HostMemoryDeltaMB)
}

func TestMonitor_FailedSamplesAreSkippedNotFatal(t *testing.T) {
	var calls int64

	m := New(testLogger(),
		WithSampleInterval(5*time.Millisecond),
		WithGPUSampler(func(ctx context.Context) (float64, error) {
			n := atomic.AddInt64(&calls, 1)
			if n%2 == 0 {
				return 0, errors.New("transient failure")
			}
			return float64(n * 100), nil
		}),
		WithHostSampler(func() (float64, error) { return 500, nil }),
	)

	m.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	peak := m.Stop()

	// Monitoring continued through failures and kept folding successes.
	assert.Greater(t, peak.GPUMemoryMB, 0.0)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(4))
}

func TestMonitor_HostMemoryDelta(t *testing.T) {
	// Baseline 1000MB, samples climb to 1400MB: delta is 400MB.
	values := []float64{1000, 1200, 1400, 1100}
	var idx int64

	m := New(testLogger(),
		WithSampleInterval(5*time.Millisecond),
		WithGPUSampler(func(ctx context.Context) (float64, error) { return 0, errors.New("no gpu") }),
		WithHostSampler(func() (float64, error) {
			i := atomic.AddInt64(&idx, 1) - 1
			if i >= int64(len(values)) {
				i = int64(len(values)) - 1
			}
			return values[i], nil
		}),
	)

	m.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	peak := m.Stop()

	assert.InDelta(t, 400.0, peak.HostMemoryDeltaMB, 0.001)
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	m := New(testLogger())
	assert.Zero(t, m.Stop())
	assert.Zero(t, m.Stop())
}

func TestMonitor_StartIsResettingAndReusable(t *testing.T) {
	high := true
	m := New(testLogger(),
		WithSampleInterval(5*time.Millisecond),
		WithGPUSampler(func(ctx context.Context) (float64, error) {
			if high {
				return 5000, nil
			}
			return 10, nil
		}),
		WithHostSampler(func() (float64, error) { return 100, nil }),
	)

	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	first := m.Stop()
	require.Equal(t, 5000.0, first.GPUMemoryMB)

	// Second window must not inherit the first window's peak.
	high = false
	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	second := m.Stop()
	assert.Equal(t, 10.0, second.GPUMemoryMB)
}

func TestMonitor_StopJoinsLoop(t *testing.T) {
	var sampling int64

	m := New(testLogger(),
		WithSampleInterval(time.Millisecond),
		WithGPUSampler(func(ctx context.Context) (float64, error) {
			atomic.AddInt64(&sampling, 1)
			return 1, nil
		}),
		WithHostSampler(func() (float64, error) { return 1, nil }),
	)

	m.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	after := atomic.LoadInt64(&sampling)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&sampling), "loop must not sample after Stop returns")
}
