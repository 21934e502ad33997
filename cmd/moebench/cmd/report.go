package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moe-bench/moe-bench/internal/report"
	"github.com/moe-bench/moe-bench/internal/storage"
)

var (
	reportRunID  string
	reportFormat string
	reportOut    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a report from a stored run",
	Long: `Generate a comparison report from the run history database. With no
--run flag the most recent run is used.`,
	RunE: generateReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "Run ID (default: most recent)")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "markdown", "Output format (json, markdown, html, chart)")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Output file (default: stdout; required for chart)")
	rootCmd.AddCommand(reportCmd)
}

func generateReport(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := storage.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("failed to migrate history database: %w", err)
	}
	store := storage.NewResultStore(db)

	runID := reportRunID
	if runID == "" {
		runs, err := store.ListRuns(cmd.Context(), 1)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs recorded yet")
		}
		runID = runs[0].ID
	}

	suite, err := store.GetRun(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	rep := report.Build(suite.ID, suite.Results)

	out := os.Stdout
	if reportOut != "" {
		f, err := os.Create(reportOut)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch reportFormat {
	case "json":
		return report.WriteJSON(rep, out)
	case "markdown", "md":
		return report.WriteMarkdown(rep, out)
	case "html":
		return report.WriteHTML(rep, out)
	case "chart", "png":
		if reportOut == "" {
			return fmt.Errorf("--out is required for chart output")
		}
		return report.WriteThroughputChart(rep, out)
	}
	return fmt.Errorf("unknown format %q", reportFormat)
}
