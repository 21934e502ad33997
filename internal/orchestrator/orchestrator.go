// Package orchestrator drives the full stress suite: one model at a
// time, server lifecycle bracketed around the scenarios, results
// collected append-only as they complete.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moe-bench/moe-bench/internal/config"
	"github.com/moe-bench/moe-bench/internal/logging"
	"github.com/moe-bench/moe-bench/internal/models"
	"github.com/moe-bench/moe-bench/internal/scenario"
)

// ServerManager brackets scenarios with a running inference server.
// server.Manager satisfies this.
type ServerManager interface {
	Start(ctx context.Context, model models.ModelConfig) bool
	Stop()
}

// ScenarioRunner executes one named scenario against a loaded model.
// scenario.Runner satisfies this.
type ScenarioRunner interface {
	Run(ctx context.Context, name string, model models.ModelConfig) (scenario.TestMetrics, error)
}

// Suite is the outcome of one full harness run
type Suite struct {
	ID            string                 `json:"id"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
	Results       []scenario.TestMetrics `json:"results"`
	SkippedModels []string               `json:"skipped_models,omitempty"`
}

// Orchestrator runs the configured scenarios against each model in turn
type Orchestrator struct {
	cfg      config.SuiteConfig
	mgr      ServerManager
	runner   ScenarioRunner
	registry *models.Registry
	logger   *slog.Logger
}

// New creates an orchestrator
func New(cfg config.SuiteConfig, mgr ServerManager, runner ScenarioRunner, registry *models.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, mgr: mgr, runner: runner, registry: registry, logger: logger}
}

// Run executes the suite for the named models, or every registered model
// when names is empty. A model whose server never becomes healthy is
// skipped and the suite continues; cancellation halts scheduling but the
// results collected so far are still returned.
func (o *Orchestrator) Run(ctx context.Context, modelNames []string) (*Suite, error) {
	selected, err := o.registry.Select(modelNames)
	if err != nil {
		return nil, err
	}

	suite := &Suite{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	ctx = logging.WithRunID(ctx, suite.ID)

	o.logger.Info("starting stress suite",
		slog.String("run_id", suite.ID),
		slog.Int("models", selected.Len()),
		slog.Any("scenarios", o.cfg.Scenarios))

	for _, model := range selected.All() {
		if ctx.Err() != nil {
			o.logger.Warn("suite cancelled, halting scheduling", slog.String("run_id", suite.ID))
			break
		}
		o.runModel(ctx, suite, model)
	}

	suite.FinishedAt = time.Now()
	o.logger.Info("stress suite finished",
		slog.String("run_id", suite.ID),
		slog.Int("results", len(suite.Results)),
		slog.Int("skipped_models", len(suite.SkippedModels)),
		slog.Duration("duration", suite.FinishedAt.Sub(suite.StartedAt)))

	return suite, nil
}

// runModel brackets one model's scenarios with its server lifetime.
// Teardown runs even if a scenario panics.
func (o *Orchestrator) runModel(ctx context.Context, suite *Suite, model models.ModelConfig) {
	ctx = logging.WithModel(ctx, model.Name)
	log := o.logger.With(slog.String("model", model.Name))

	if !o.mgr.Start(ctx, model) {
		log.Error("server failed to start, skipping model")
		suite.SkippedModels = append(suite.SkippedModels, model.Name)
		return
	}
	defer o.mgr.Stop()

	// Let the server finish weight loading and page-in before measuring.
	if !o.settle(ctx) {
		return
	}

	for _, name := range o.cfg.Scenarios {
		if ctx.Err() != nil {
			return
		}
		result, err := o.runner.Run(ctx, name, model)
		if err != nil {
			log.Warn("scenario not run", slog.String("scenario", name), slog.String("error", err.Error()))
			continue
		}
		suite.Results = append(suite.Results, result)
	}
}

// settle waits out the configured settle time, abandoning the wait on
// cancellation
func (o *Orchestrator) settle(ctx context.Context) bool {
	if o.cfg.ModelSettleTime <= 0 {
		return true
	}
	timer := time.NewTimer(o.cfg.ModelSettleTime)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
