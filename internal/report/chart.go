package report

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
)

// WriteThroughputChart renders a PNG bar chart of average throughput
// per model and scenario
func WriteThroughputChart(r *Report, w io.Writer) error {
	if len(r.Comparisons) == 0 {
		return fmt.Errorf("no results to chart")
	}

	bars := make([]chart.Value, 0, len(r.Comparisons))
	for _, c := range r.Comparisons {
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%s\n%s", c.ModelName, c.ScenarioName),
			Value: c.AvgTPS,
		})
	}

	graph := chart.BarChart{
		Title:    "Average throughput (tokens/sec)",
		Height:   512,
		BarWidth: 48,
		Background: chart.Style{
			Padding: chart.Box{Top: 48},
		},
		Bars: bars,
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
