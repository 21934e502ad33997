// Package server manages the lifecycle of the external inference server
// process: spawn with injected environment, readiness polling, and
// guaranteed teardown.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/moe-bench/moe-bench/internal/client"
	"github.com/moe-bench/moe-bench/internal/config"
	"github.com/moe-bench/moe-bench/internal/metrics"
	"github.com/moe-bench/moe-bench/internal/models"
)

// WeightsEnvVar names the environment variable carrying the model weights
// path into the server process
const WeightsEnvVar = "SHIMMY_BASE_GGUF"

// Manager owns at most one inference server process at a time. It is the
// exclusive owner of the server's port; server lifetimes across models
// never overlap.
type Manager struct {
	cfg    config.ServerConfig
	logger *slog.Logger

	// healthURL overrides the configured base URL, for tests
	healthURL string
	// launchArgs overrides the default serve arguments
	launchArgs []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// Option configures a Manager
type Option func(*Manager)

// WithHealthURL overrides the health-check base URL
func WithHealthURL(url string) Option {
	return func(m *Manager) { m.healthURL = url }
}

// WithLaunchArgs replaces the default serve arguments entirely
func WithLaunchArgs(args ...string) Option {
	return func(m *Manager) { m.launchArgs = args }
}

// NewManager creates a lifecycle manager for the configured server binary
func NewManager(cfg config.ServerConfig, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	m := &Manager{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start spawns the server for the given model and blocks until it answers
// the health check or the startup timeout elapses. Any previously managed
// process is stopped first. On failure the spawned process is terminated
// and false is returned; this boundary never panics past itself.
func (m *Manager) Start(ctx context.Context, model models.ModelConfig) bool {
	// Idempotent restart: never leave two servers racing for the port.
	m.Stop()

	args := m.launchArgs
	if args == nil {
		args = []string{
			"serve",
			"--bind", fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port),
			"--cpu-moe",
		}
		args = append(args, m.cfg.ExtraArgs...)
	}

	cmd := exec.Command(m.cfg.BinPath, args...)
	cmd.Dir = m.cfg.WorkDir
	cmd.Env = append(os.Environ(),
		WeightsEnvVar+"="+model.WeightsPath,
		"SHIMMY_CTX_LEN="+strconv.Itoa(model.ContextLength),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.logger.Error("failed to open server stdout", slog.String("error", err.Error()))
		metrics.RecordServerStart(false, 0)
		return false
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.logger.Error("failed to open server stderr", slog.String("error", err.Error()))
		metrics.RecordServerStart(false, 0)
		return false
	}

	m.logger.Info("starting inference server",
		slog.String("model", model.DisplayName),
		slog.String("bin", m.cfg.BinPath),
		slog.Int("port", m.cfg.Port))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		m.logger.Error("failed to spawn inference server",
			slog.String("model", model.Name),
			slog.String("error", err.Error()))
		metrics.RecordServerStart(false, 0)
		return false
	}

	// Drain output streams so the child never blocks on a full pipe.
	go m.drain(stdout, "stdout", model.Name)
	go m.drain(stderr, "stderr", model.Name)

	m.mu.Lock()
	m.cmd = cmd
	m.mu.Unlock()

	if err := m.waitHealthy(ctx); err != nil {
		m.logger.Error("inference server failed to become healthy",
			slog.String("model", model.Name),
			slog.String("error", err.Error()))
		m.Stop()
		metrics.RecordServerStart(false, 0)
		return false
	}

	m.logger.Info("inference server ready",
		slog.String("model", model.DisplayName),
		slog.Duration("startup_time", time.Since(start)))
	metrics.RecordServerStart(true, time.Since(start))
	return true
}

// drain copies one output stream of the child into the log
func (m *Manager) drain(r io.Reader, stream, model string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		m.logger.Debug("server output",
			slog.String("model", model),
			slog.String("stream", stream),
			slog.String("line", scanner.Text()))
	}
}

// waitHealthy polls the health endpoint on a fixed cadence until success
// or the startup timeout
func (m *Manager) waitHealthy(ctx context.Context) error {
	baseURL := m.healthURL
	if baseURL == "" {
		baseURL = m.cfg.BaseURL()
	}

	c := client.New(baseURL, client.WithTimeout(5*time.Second))
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.StartupTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(m.cfg.HealthInterval), 1)

	var lastErr error
	for {
		if err := limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return fmt.Errorf("health check timed out after %s: %w", m.cfg.StartupTimeout, lastErr)
			}
			return fmt.Errorf("health check timed out after %s", m.cfg.StartupTimeout)
		}

		if err := c.Health(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
}

// Stop terminates the managed process if any. It is idempotent: a graceful
// termination request, a bounded wait, a force kill if unresponsive, and
// the owned handle is always cleared so repeated calls are safe no-ops.
func (m *Manager) Stop() {
	m.mu.Lock()
	cmd := m.cmd
	m.cmd = nil
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	m.logger.Info("stopping inference server", slog.Int("pid", cmd.Process.Pid))

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone; reap and move on.
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(m.cfg.StopTimeout):
		m.logger.Warn("inference server unresponsive, killing", slog.Int("pid", cmd.Process.Pid))
		_ = cmd.Process.Kill()
		<-done
	}
}

// Running reports whether a process handle is currently owned
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil
}
