package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moe-bench/moe-bench/internal/config"
	"github.com/moe-bench/moe-bench/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		BinPath:        "/bin/sh",
		Host:           "127.0.0.1",
		Port:           11435,
		StartupTimeout: 3 * time.Second,
		HealthInterval: 20 * time.Millisecond,
		StopTimeout:    2 * time.Second,
	}
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

func TestManager_StartAndStop(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	m := NewManager(testServerConfig(), testLogger(),
		WithHealthURL(ts.URL),
		WithLaunchArgs("-c", "sleep 30"))

	require.True(t, m.Start(context.Background(), testModel()))
	assert.True(t, m.Running())

	m.Stop()
	assert.False(t, m.Running())
}

func TestManager_SpawnFailureReturnsFalse(t *testing.T) {
	cfg := testServerConfig()
	cfg.BinPath = "/nonexistent/inference-server"

	m := NewManager(cfg, testLogger())

	assert.False(t, m.Start(context.Background(), testModel()))
	assert.False(t, m.Running())
}

func TestManager_HealthTimeoutLeavesNoOrphan(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cfg := testServerConfig()
	cfg.StartupTimeout = 200 * time.Millisecond

	m := NewManager(cfg, testLogger(),
		WithHealthURL(ts.URL),
		WithLaunchArgs("-c", "sleep 30"))

	assert.False(t, m.Start(context.Background(), testModel()))
	// The spawned process must have been torn down, not orphaned.
	assert.False(t, m.Running())
}

func TestManager_StartHonorsContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	m := NewManager(testServerConfig(), testLogger(),
		WithHealthURL(ts.URL),
		WithLaunchArgs("-c", "sleep 30"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, m.Start(ctx, testModel()))
	assert.False(t, m.Running())
}

func TestManager_StopIsIdempotent(t *testing.T) {
	t.Run("without start", func(t *testing.T) {
		m := NewManager(testServerConfig(), testLogger())
		m.Stop()
		m.Stop()
		assert.False(t, m.Running())
	})

	t.Run("after start", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		m := NewManager(testServerConfig(), testLogger(),
			WithHealthURL(ts.URL),
			WithLaunchArgs("-c", "sleep 30"))

		require.True(t, m.Start(context.Background(), testModel()))
		m.Stop()
		m.Stop()
		assert.False(t, m.Running())
	})
}

func TestManager_RestartReplacesPreviousProcess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	m := NewManager(testServerConfig(), testLogger(),
		WithHealthURL(ts.URL),
		WithLaunchArgs("-c", "sleep 30"))

	require.True(t, m.Start(context.Background(), testModel()))
	first := m.pid()

	require.True(t, m.Start(context.Background(), testModel()))
	second := m.pid()

	assert.NotEqual(t, first, second)
	m.Stop()
}

// pid exposes the managed process ID for tests
func (m *Manager) pid() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil || m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}
