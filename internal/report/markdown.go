package report

import (
	"fmt"
	"io"
	"strings"
)

// WriteMarkdown renders the report as a human-readable Markdown document
func WriteMarkdown(r *Report, w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("# MoE Model Stress Report\n\n")
	sb.WriteString(fmt.Sprintf("**Generated**: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("**Run**: %s\n", r.RunID))
	}
	sb.WriteString("\n")

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Models tested**: %d\n", r.Summary.ModelsTested))
	sb.WriteString(fmt.Sprintf("- **Scenarios run**: %d\n", r.Summary.ScenariosRun))
	sb.WriteString(fmt.Sprintf("- **Scenario results**: %d\n", r.Summary.TotalResults))
	sb.WriteString(fmt.Sprintf("- **Total tokens generated**: %d\n\n", r.Summary.TotalTokens))

	if len(r.Comparisons) > 0 {
		sb.WriteString("## Model Comparison\n\n")
		sb.WriteString("| Model | Scenario | Runs | Avg TPS | Success Rate | Avg Response (ms) | Peak GPU (MB) | Tokens |\n")
		sb.WriteString("|-------|----------|------|---------|--------------|-------------------|---------------|--------|\n")
		for _, c := range r.Comparisons {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.1f | %.1f%% | %.0f | %.0f | %d |\n",
				c.ModelName, c.ScenarioName, c.Runs,
				c.AvgTPS, c.AvgSuccessRate*100, c.AvgResponseMS,
				c.MaxPeakGPUMB, c.TotalTokens))
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
