package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moe-bench/moe-bench/internal/orchestrator"
	"github.com/moe-bench/moe-bench/internal/scenario"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func sampleSuite() *orchestrator.Suite {
	started := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	return &orchestrator.Suite{
		ID:            "run-1",
		StartedAt:     started,
		FinishedAt:    started.Add(30 * time.Minute),
		SkippedModels: []string{"deepseek-moe-16b-f16"},
		Results: []scenario.TestMetrics{
			{
				ModelName:             "gpt-oss-20b-f16",
				ScenarioName:          scenario.Basic,
				StartTime:             started,
				EndTime:               started.Add(5 * time.Minute),
				TokensGenerated:       1800,
				TotalTimeSeconds:      300,
				TokensPerSecond:       6,
				PeakGPUMemoryMB:       2048,
				PeakHostMemoryMB:      512,
				AverageResponseTimeMS: 30000,
				SuccessRate:           0.9,
				QualityScore:          0.9,
			},
			{
				ModelName:        "gpt-oss-20b-f16",
				ScenarioName:     scenario.Concurrent,
				StartTime:        started.Add(10 * time.Minute),
				EndTime:          started.Add(15 * time.Minute),
				TokensGenerated:  4200,
				TotalTimeSeconds: 12.4,
				TokensPerSecond:  338.7,
				SuccessRate:      0.8,
				QualityScore:     0.8,
			},
		},
	}
}

func TestDB_Migrate(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"runs", "results"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s must exist", table)
	}

	// Re-running migrations is idempotent.
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestResultStore_CreateAndGetRun(t *testing.T) {
	store := NewResultStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, sampleSuite()))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, []string{"deepseek-moe-16b-f16"}, got.SkippedModels)
	require.Len(t, got.Results, 2)

	basic := got.Results[0]
	assert.Equal(t, "gpt-oss-20b-f16", basic.ModelName)
	assert.Equal(t, scenario.Basic, basic.ScenarioName)
	assert.Equal(t, 1800, basic.TokensGenerated)
	assert.InDelta(t, 0.9, basic.SuccessRate, 1e-9)
	assert.InDelta(t, 2048, basic.PeakGPUMemoryMB, 1e-9)

	concurrent := got.Results[1]
	assert.Equal(t, scenario.Concurrent, concurrent.ScenarioName)
	assert.InDelta(t, 338.7, concurrent.TokensPerSecond, 1e-9)
}

func TestResultStore_GetRun_NotFound(t *testing.T) {
	store := NewResultStore(testDB(t))

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultStore_CreateRun_GeneratesID(t *testing.T) {
	store := NewResultStore(testDB(t))

	suite := sampleSuite()
	suite.ID = ""
	require.NoError(t, store.CreateRun(context.Background(), suite))
	assert.NotEmpty(t, suite.ID)
}

func TestResultStore_ListRuns(t *testing.T) {
	store := NewResultStore(testDB(t))
	ctx := context.Background()

	first := sampleSuite()
	require.NoError(t, store.CreateRun(ctx, first))

	second := sampleSuite()
	second.ID = "run-2"
	second.StartedAt = first.StartedAt.Add(time.Hour)
	second.FinishedAt = second.StartedAt.Add(time.Minute)
	second.Results = nil
	second.SkippedModels = nil
	require.NoError(t, store.CreateRun(ctx, second))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Zero(t, runs[0].ResultCount)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.Equal(t, 2, runs[1].ResultCount)

	limited, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestResultStore_ModelStats(t *testing.T) {
	store := NewResultStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, sampleSuite()))

	stats, err := store.ModelStats(ctx, "gpt-oss-20b-f16")
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Grouped by scenario, alphabetical.
	assert.Equal(t, scenario.Basic, stats[0].ScenarioName)
	assert.Equal(t, 1, stats[0].Runs)
	assert.InDelta(t, 6, stats[0].AvgTPS, 1e-9)
	assert.InDelta(t, 2048, stats[0].MaxPeakGPUMB, 1e-9)

	assert.Equal(t, scenario.Concurrent, stats[1].ScenarioName)

	_, err = store.ModelStats(ctx, "unknown-model")
	assert.ErrorIs(t, err, ErrNotFound)
}
