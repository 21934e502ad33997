package report

import (
	"fmt"
	"html/template"
	"io"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(v float64) float64 { return v * 100 },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>MoE Model Stress Report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-top: 1em; }
th, td { border: 1px solid #ccc; padding: 6px 12px; text-align: right; }
th { background: #f0f0f0; }
td:first-child, td:nth-child(2) { text-align: left; }
.meta { color: #666; }
</style>
</head>
<body>
<h1>MoE Model Stress Report</h1>
<p class="meta">Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}{{if .RunID}} &mdash; run {{.RunID}}{{end}}</p>
<h2>Summary</h2>
<ul>
<li>Models tested: {{.Summary.ModelsTested}}</li>
<li>Scenarios run: {{.Summary.ScenariosRun}}</li>
<li>Scenario results: {{.Summary.TotalResults}}</li>
<li>Total tokens generated: {{.Summary.TotalTokens}}</li>
</ul>
<h2>Model Comparison</h2>
<table>
<tr><th>Model</th><th>Scenario</th><th>Runs</th><th>Avg TPS</th><th>Success</th><th>Avg Response (ms)</th><th>Peak GPU (MB)</th><th>Tokens</th></tr>
{{range .Comparisons}}
<tr>
<td>{{.ModelName}}</td>
<td>{{.ScenarioName}}</td>
<td>{{.Runs}}</td>
<td>{{printf "%.1f" .AvgTPS}}</td>
<td>{{printf "%.1f%%" (pct .AvgSuccessRate)}}</td>
<td>{{printf "%.0f" .AvgResponseMS}}</td>
<td>{{printf "%.0f" .MaxPeakGPUMB}}</td>
<td>{{.TotalTokens}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`))

// WriteHTML renders the report as a standalone HTML page
func WriteHTML(r *Report, w io.Writer) error {
	if err := htmlTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return nil
}
