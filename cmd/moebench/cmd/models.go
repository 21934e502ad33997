package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/moe-bench/moe-bench/internal/models"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered model configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		defer w.Flush()

		fmt.Fprintln(w, "NAME\tDISPLAY NAME\tEXPERTS\tACTIVE\tCONTEXT\tWEIGHTS")
		for _, m := range models.Default().All() {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
				m.Name, m.DisplayName, m.ExpertsTotal, m.ExpertsActive, m.ContextLength, m.WeightsPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
