package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/moe-bench/moe-bench/internal/client"
	"github.com/moe-bench/moe-bench/internal/models"
	"github.com/moe-bench/moe-bench/internal/monitor"
	"github.com/moe-bench/moe-bench/internal/orchestrator"
	"github.com/moe-bench/moe-bench/internal/report"
	"github.com/moe-bench/moe-bench/internal/scenario"
	"github.com/moe-bench/moe-bench/internal/server"
	"github.com/moe-bench/moe-bench/internal/storage"
)

var (
	runModels      []string
	runOutputDir   string
	runNoDB        bool
	runMarkdown    bool
	runHTML        bool
	runChart       bool
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stress suite",
	Long: `Run the full stress suite: for each model, start the inference
server, wait for it to become healthy, execute the configured scenarios,
and tear the server down before moving on. Results are written to the
results directory and recorded in the run history database.`,
	RunE: runSuite,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runModels, "models", "m", nil, "Models to test (default: all registered)")
	runCmd.Flags().StringVarP(&runOutputDir, "output", "o", "", "Results directory override")
	runCmd.Flags().BoolVar(&runNoDB, "no-db", false, "Skip recording the run in the history database")
	runCmd.Flags().BoolVar(&runMarkdown, "markdown", false, "Also write a Markdown report")
	runCmd.Flags().BoolVar(&runHTML, "html", false, "Also write an HTML report")
	runCmd.Flags().BoolVar(&runChart, "chart", false, "Also write a throughput chart PNG")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Expose prometheus metrics on this address during the run")
	rootCmd.AddCommand(runCmd)
}

func runSuite(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if runOutputDir != "" {
		cfg.Suite.ResultsDir = runOutputDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(runMetricsAddr, mux); err != nil {
				logger.Warn("metrics endpoint stopped", slog.String("error", err.Error()))
			}
		}()
	}

	registry := models.Default()

	gen := client.New(cfg.Server.BaseURL(),
		client.WithTimeout(cfg.Client.RequestTimeout),
		client.WithTemperature(cfg.Client.Temperature))
	defer gen.Close()

	mon := monitor.New(logger,
		monitor.WithSampleInterval(cfg.Monitor.SampleInterval),
		monitor.WithStopTimeout(cfg.Monitor.StopTimeout))

	mgr := server.NewManager(cfg.Server, logger)
	runner := scenario.NewRunner(gen, mon, logger)
	orch := orchestrator.New(cfg.Suite, mgr, runner, registry, logger)

	suite, err := orch.Run(ctx, runModels)
	if err != nil {
		return err
	}

	rep := report.Build(suite.ID, suite.Results)
	if err := writeArtifacts(rep, cfg.Suite.ResultsDir, logger); err != nil {
		return err
	}

	if !runNoDB {
		db, err := storage.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate history database: %w", err)
		}
		if err := storage.NewResultStore(db).CreateRun(ctx, suite); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		logger.Info("run recorded", slog.String("run_id", suite.ID))
	}

	printSummary(rep, suite)
	return nil
}

// writeArtifacts writes the requested report formats to the results dir
func writeArtifacts(rep *report.Report, dir string, logger *slog.Logger) error {
	stamp := time.Now().Format("20060102_150405")
	base := filepath.Join(dir, "moe_stress_results_"+stamp)

	jsonPath := base + ".json"
	if err := report.WriteJSONFile(rep, jsonPath); err != nil {
		return err
	}
	logger.Info("report written", slog.String("path", jsonPath))

	if runMarkdown {
		if err := writeFileWith(base+".md", func(f *os.File) error {
			return report.WriteMarkdown(rep, f)
		}); err != nil {
			return err
		}
	}
	if runHTML {
		if err := writeFileWith(base+".html", func(f *os.File) error {
			return report.WriteHTML(rep, f)
		}); err != nil {
			return err
		}
	}
	if runChart {
		if err := writeFileWith(base+".png", func(f *os.File) error {
			return report.WriteThroughputChart(rep, f)
		}); err != nil {
			logger.Warn("chart not written", slog.String("error", err.Error()))
		}
	}
	return nil
}

func writeFileWith(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	return f.Close()
}

func printSummary(rep *report.Report, suite *orchestrator.Suite) {
	fmt.Printf("\nRun %s: %d results across %d models\n",
		suite.ID, rep.Summary.TotalResults, rep.Summary.ModelsTested)
	for _, c := range rep.Comparisons {
		fmt.Printf("  %-28s %-12s %8.1f tok/s  %5.1f%% success  peak %6.0f MB\n",
			c.ModelName, c.ScenarioName, c.AvgTPS, c.AvgSuccessRate*100, c.MaxPeakGPUMB)
	}
	if len(suite.SkippedModels) > 0 {
		fmt.Printf("  skipped: %v\n", suite.SkippedModels)
	}
}
