package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moe-bench/moe-bench/internal/orchestrator"
	"github.com/moe-bench/moe-bench/internal/scenario"
)

// RunSummary is one row of run history
type RunSummary struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	ResultCount   int       `json:"result_count"`
	SkippedModels []string  `json:"skipped_models,omitempty"`
}

// ScenarioStats aggregates a model's history for one scenario
type ScenarioStats struct {
	ScenarioName   string  `json:"scenario_name"`
	Runs           int     `json:"runs"`
	AvgTPS         float64 `json:"avg_tps"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
	MaxPeakGPUMB   float64 `json:"max_peak_gpu_mb"`
}

// ResultStore handles suite run persistence
type ResultStore struct {
	db *DB
}

// NewResultStore creates a new result store
func NewResultStore(db *DB) *ResultStore {
	return &ResultStore{db: db}
}

// CreateRun persists one suite and all its scenario results atomically
func (s *ResultStore) CreateRun(ctx context.Context, suite *orchestrator.Suite) error {
	if suite.ID == "" {
		suite.ID = uuid.New().String()
	}

	skippedJSON, err := json.Marshal(suite.SkippedModels)
	if err != nil {
		return fmt.Errorf("failed to marshal skipped_models: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, skipped_models) VALUES (?, ?, ?, ?)`,
		suite.ID, suite.StartedAt, suite.FinishedAt, string(skippedJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	for _, r := range suite.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO results (
				id, run_id, model_name, scenario_name,
				start_time, end_time, tokens_generated, total_time_seconds,
				tokens_per_second, peak_gpu_memory_mb, peak_host_memory_mb,
				avg_response_time_ms, success_rate, quality_score
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), suite.ID, r.ModelName, r.ScenarioName,
			r.StartTime, r.EndTime, r.TokensGenerated, r.TotalTimeSeconds,
			r.TokensPerSecond, r.PeakGPUMemoryMB, r.PeakHostMemoryMB,
			r.AverageResponseTimeMS, r.SuccessRate, r.QualityScore,
		)
		if err != nil {
			return fmt.Errorf("failed to create result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a suite with all its scenario results by run ID
func (s *ResultStore) GetRun(ctx context.Context, id string) (*orchestrator.Suite, error) {
	suite := &orchestrator.Suite{}
	var skippedJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, skipped_models FROM runs WHERE id = ?`, id,
	).Scan(&suite.ID, &suite.StartedAt, &suite.FinishedAt, &skippedJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := json.Unmarshal([]byte(skippedJSON), &suite.SkippedModels); err != nil {
		suite.SkippedModels = nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT model_name, scenario_name, start_time, end_time,
			tokens_generated, total_time_seconds, tokens_per_second,
			peak_gpu_memory_mb, peak_host_memory_mb, avg_response_time_ms,
			success_rate, quality_score
		FROM results WHERE run_id = ? ORDER BY start_time`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r scenario.TestMetrics
		if err := rows.Scan(
			&r.ModelName, &r.ScenarioName, &r.StartTime, &r.EndTime,
			&r.TokensGenerated, &r.TotalTimeSeconds, &r.TokensPerSecond,
			&r.PeakGPUMemoryMB, &r.PeakHostMemoryMB, &r.AverageResponseTimeMS,
			&r.SuccessRate, &r.QualityScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		suite.Results = append(suite.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}

	return suite, nil
}

// ListRuns returns run history, newest first
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, r.finished_at, r.skipped_models,
			(SELECT COUNT(*) FROM results WHERE run_id = r.id)
		FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var summary RunSummary
		var skippedJSON string
		if err := rows.Scan(&summary.ID, &summary.StartedAt, &summary.FinishedAt, &skippedJSON, &summary.ResultCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(skippedJSON), &summary.SkippedModels); err != nil {
			summary.SkippedModels = nil
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return out, nil
}

// ModelStats aggregates one model's history across all stored runs
func (s *ResultStore) ModelStats(ctx context.Context, modelName string) ([]ScenarioStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_name, COUNT(*),
			AVG(tokens_per_second), AVG(success_rate), MAX(peak_gpu_memory_mb)
		FROM results WHERE model_name = ?
		GROUP BY scenario_name ORDER BY scenario_name`, modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to query model stats: %w", err)
	}
	defer rows.Close()

	var out []ScenarioStats
	for rows.Next() {
		var st ScenarioStats
		if err := rows.Scan(&st.ScenarioName, &st.Runs, &st.AvgTPS, &st.AvgSuccessRate, &st.MaxPeakGPUMB); err != nil {
			return nil, fmt.Errorf("failed to scan model stats: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate model stats: %w", err)
	}

	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
