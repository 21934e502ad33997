// Package monitor provides background peak-resource sampling over a test
// window. Samples are folded into running maxima; individual readings are
// discarded.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/moe-bench/moe-bench/internal/metrics"
)

const (
	// DefaultSampleInterval is the cadence of the sampling loop
	DefaultSampleInterval = time.Second
	// DefaultStopTimeout bounds the wait for the sampling loop to exit
	DefaultStopTimeout = 5 * time.Second
)

// Peak holds the maxima observed during a monitoring window
type Peak struct {
	GPUMemoryMB       float64
	HostMemoryDeltaMB float64
}

// GPUSampleFunc returns the current GPU memory usage in MB
type GPUSampleFunc func(ctx context.Context) (float64, error)

// HostSampleFunc returns the current host memory usage in MB
type HostSampleFunc func() (float64, error)

// Monitor samples GPU and host memory on a fixed cadence and retains only
// the running maxima. A Monitor is reusable across windows; each window is
// opened by Start and closed by Stop.
type Monitor struct {
	interval    time.Duration
	stopTimeout time.Duration
	logger      *slog.Logger

	sampleGPU  GPUSampleFunc
	sampleHost HostSampleFunc

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	peakGPU      float64
	baselineHost float64
	peakHostUsed float64
	hostSampled  bool
}

// Option configures a Monitor
type Option func(*Monitor)

// WithSampleInterval sets the sampling cadence
func WithSampleInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithStopTimeout bounds the join wait in Stop
func WithStopTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// WithGPUSampler replaces the GPU sampling source
func WithGPUSampler(fn GPUSampleFunc) Option {
	return func(m *Monitor) { m.sampleGPU = fn }
}

// WithHostSampler replaces the host memory sampling source
func WithHostSampler(fn HostSampleFunc) Option {
	return func(m *Monitor) { m.sampleHost = fn }
}

// New creates a monitor backed by nvidia-smi and host virtual memory stats
func New(logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		interval:    DefaultSampleInterval,
		stopTimeout: DefaultStopTimeout,
		logger:      logger,
		sampleGPU:   GPUMemoryUsedMB,
		sampleHost:  HostMemoryUsedMB,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start resets the peak accumulators and launches the sampling loop.
// Calling Start while a window is open is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.peakGPU = 0
	m.peakHostUsed = 0
	m.hostSampled = false
	m.baselineHost = 0

	if used, err := m.sampleHost(); err == nil {
		m.baselineHost = used
	} else {
		m.logger.Warn("host memory baseline unavailable", slog.String("error", err.Error()))
		metrics.RecordSamplingFailure("host")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(loopCtx, m.done)
}

// loop samples on the configured cadence until cancelled. A failed sample
// is logged and skipped; it never aborts monitoring.
func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	gpuMB, gpuErr := m.sampleGPU(ctx)
	hostMB, hostErr := m.sampleHost()

	if gpuErr != nil {
		m.logger.Warn("GPU sample failed", slog.String("error", gpuErr.Error()))
		metrics.RecordSamplingFailure("gpu")
	}
	if hostErr != nil {
		m.logger.Warn("host memory sample failed", slog.String("error", hostErr.Error()))
		metrics.RecordSamplingFailure("host")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gpuErr == nil && gpuMB > m.peakGPU {
		m.peakGPU = gpuMB
	}
	if hostErr == nil {
		m.hostSampled = true
		if hostMB > m.peakHostUsed {
			m.peakHostUsed = hostMB
		}
	}
}

// Stop signals the sampling loop to exit, waits for it to join (bounded),
// and returns the peaks observed in the window. If no sample ever
// succeeded the returned peaks are zero. Stop without a matching Start is
// a no-op returning zeros.
func (m *Monitor) Stop() Peak {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return Peak{}
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(m.stopTimeout):
		m.logger.Warn("sampling loop did not exit before stop timeout")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	peak := Peak{GPUMemoryMB: m.peakGPU}
	if m.hostSampled {
		delta := m.peakHostUsed - m.baselineHost
		if delta > 0 {
			peak.HostMemoryDeltaMB = delta
		}
	}
	return peak
}
