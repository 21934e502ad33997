package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/moe-bench/moe-bench/internal/storage"
)

var (
	historyLimit int
	historyModel string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show run history",
	RunE:  showHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to show")
	historyCmd.Flags().StringVarP(&historyModel, "model", "m", "", "Show aggregated stats for one model instead")
	rootCmd.AddCommand(historyCmd)
}

func showHistory(cmd *cobra.Command, args []string) error {
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

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	defer w.Flush()

	if historyModel != "" {
		stats, err := store.ModelStats(cmd.Context(), historyModel)
		if err != nil {
			return fmt.Errorf("no history for model %s: %w", historyModel, err)
		}

		fmt.Fprintln(w, "SCENARIO\tRUNS\tAVG TPS\tAVG SUCCESS\tMAX PEAK GPU (MB)")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f%%\t%.0f\n",
				s.ScenarioName, s.Runs, s.AvgTPS, s.AvgSuccessRate*100, s.MaxPeakGPUMB)
		}
		return nil
	}

	runs, err := store.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tRESULTS\tSKIPPED")
	for _, r := range runs {
		skipped := "-"
		if len(r.SkippedModels) > 0 {
			skipped = strings.Join(r.SkippedModels, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
			r.ResultCount,
			skipped)
	}
	return nil
}
