package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Totals           metrics.Stats
	Workers          Workers
	Directions       []DirectionRow
	History          []HistoryPoint
	HistoryJSON      string
	ThresholdSummary *ThresholdSummary
	Metadata         ReportMetadata
}

// ReportMetadata describes the server that produced the report.
type ReportMetadata struct {
	ListenAddr    string
	FlushInterval time.Duration
}

// DirectionRow is one populated direction of the totals.
type DirectionRow struct {
	Label string
	Stats metrics.DirectionStats
}

// HistoryPoint is one flushed window, flattened for charting.
type HistoryPoint struct {
	Seconds            float64 `json:"seconds"`
	WriteRecordsPerSec float64 `json:"write_rps"`
	ReadRecordsPerSec  float64 `json:"read_rps"`
	WriteMBPerSec      float64 `json:"write_mbps"`
	ReadMBPerSec       float64 `json:"read_mbps"`
	WriteAvgLatency    float64 `json:"write_avg_latency"`
	ReadAvgLatency     float64 `json:"read_avg_latency"`
}

// ThresholdSummary aggregates threshold results for display.
type ThresholdSummary struct {
	Total   int
	Passed  int
	Failed  int
	Results []ThresholdResultJSON
}

// ThresholdResultJSON is a flattened threshold.Result.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// GenerateHTMLReport renders a standalone HTML report of the totals with a
// throughput chart built from the flushed windows.
func GenerateHTMLReport(w io.Writer, totals metrics.Stats, windows []metrics.Stats, workers Workers, thresholdResults []threshold.Result, metadata ReportMetadata) error {
	var thresholdSummary *ThresholdSummary
	if len(thresholdResults) > 0 {
		thresholdSummary = &ThresholdSummary{
			Total:   len(thresholdResults),
			Results: make([]ThresholdResultJSON, len(thresholdResults)),
		}
		for i, tr := range thresholdResults {
			thresholdSummary.Results[i] = ThresholdResultJSON{
				Threshold: tr.Threshold.Raw,
				Metric:    tr.Threshold.Metric,
				Aggregate: tr.Threshold.Aggregate,
				Operator:  tr.Threshold.Operator,
				Expected:  tr.Threshold.Value,
				Actual:    tr.Actual,
				Pass:      tr.Pass,
			}
			if tr.Pass {
				thresholdSummary.Passed++
			} else {
				thresholdSummary.Failed++
			}
		}
	}

	var directions []DirectionRow
	if totals.Write.Records > 0 || totals.Write.Samples > 0 {
		directions = append(directions, DirectionRow{Label: "Write", Stats: totals.Write})
	}
	if totals.Read.Records > 0 || totals.Read.Samples > 0 {
		directions = append(directions, DirectionRow{Label: "Read", Stats: totals.Read})
	}

	history := make([]HistoryPoint, 0, len(windows))
	for _, win := range windows {
		history = append(history, HistoryPoint{
			Seconds:            win.End.Sub(totals.Start).Seconds(),
			WriteRecordsPerSec: win.Write.RecordsPerSec,
			ReadRecordsPerSec:  win.Read.RecordsPerSec,
			WriteMBPerSec:      win.Write.MBPerSec,
			ReadMBPerSec:       win.Read.MBPerSec,
			WriteAvgLatency:    win.Write.AvgLatency,
			ReadAvgLatency:     win.Read.AvgLatency,
		})
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Totals:           totals,
		Workers:          workers,
		Directions:       directions,
		History:          history,
		HistoryJSON:      string(historyJSON),
		ThresholdSummary: thresholdSummary,
		Metadata:         metadata,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Truncate(time.Millisecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"percentileLabel": percentileLabel,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Benchhub Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: #f3f4f6;
            color: #1f2937;
            line-height: 1.5;
            padding: 20px;
        }
        .container { max-width: 1200px; margin: 0 auto; background: white; border-radius: 8px; overflow: hidden; }
        header { background: #1e3a8a; color: white; padding: 24px 32px; }
        header .meta { opacity: 0.85; font-size: 0.9rem; }
        .content { padding: 32px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 16px; margin-bottom: 32px; }
        .card { background: #f9fafb; border-radius: 6px; padding: 16px; border-left: 4px solid #1e3a8a; }
        .card h3 { font-size: 0.8rem; color: #6b7280; text-transform: uppercase; }
        .card .value { font-size: 1.6rem; font-weight: bold; }
        .card.warning { border-left-color: #f59e0b; }
        .section { margin-bottom: 32px; }
        .section h2 { font-size: 1.3rem; margin-bottom: 16px; border-bottom: 2px solid #e5e7eb; }
        .chart { width: 100%; height: 300px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 10px; border-bottom: 1px solid #e5e7eb; }
        th { background: #f9fafb; font-size: 0.85rem; text-transform: uppercase; color: #4b5563; }
        .badge { display: inline-block; padding: 2px 10px; border-radius: 10px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>Benchhub Report</h1>
            {{if .Metadata.ListenAddr}}<div class="meta">Server: {{.Metadata.ListenAddr}}{{if .Metadata.FlushInterval}} | Window: {{formatDuration .Metadata.FlushInterval}}{{end}}</div>{{end}}
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Totals.Duration}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card"><h3>Batches</h3><div class="value">{{.Totals.Batches}}</div></div>
                <div class="card"><h3>Writers (max)</h3><div class="value">{{.Workers.MaxWriters}}</div></div>
                <div class="card"><h3>Readers (max)</h3><div class="value">{{.Workers.MaxReaders}}</div></div>
                <div class="card warning"><h3>Rejected</h3><div class="value">{{.Totals.Rejected}}</div></div>
                <div class="card warning"><h3>Discarded</h3><div class="value">{{.Totals.Discarded}}</div></div>
            </div>

            {{if .History}}
            <div class="section">
                <h2>Throughput Over Time</h2>
                <div id="throughput-chart" class="chart"></div>
            </div>
            {{end}}

            {{range .Directions}}
            <div class="section">
                <h2>{{.Label}}s</h2>
                <table>
                    <tbody>
                        <tr><th>Records</th><td>{{.Stats.Records}}</td></tr>
                        <tr><th>Bytes</th><td>{{.Stats.Bytes}}</td></tr>
                        <tr><th>Records/sec</th><td>{{formatFloat .Stats.RecordsPerSec}}</td></tr>
                        <tr><th>MB/sec</th><td>{{formatFloat .Stats.MBPerSec}}</td></tr>
                        <tr><th>Latency min / avg / max</th><td>{{.Stats.MinLatency}} / {{formatFloat .Stats.AvgLatency}} / {{.Stats.MaxLatency}} {{$.Totals.Unit}}</td></tr>
                        {{range .Stats.Percentiles}}
                        <tr><th>{{percentileLabel .Percentile}}</th><td>{{.Value}} {{$.Totals.Unit}}</td></tr>
                        {{end}}
                        <tr><th>Discarded below / above range</th><td>{{.Stats.LowDiscards}} / {{.Stats.HighDiscards}}</td></tr>
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr><th>Threshold</th><th>Metric</th><th>Expected</th><th>Actual</th><th>Status</th></tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .History}}
    <script>
        const points = JSON.parse({{.HistoryJSON}});
        if (points && points.length > 0) {
            const el = document.getElementById('throughput-chart');
            new uPlot({
                width: el.offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { label: "Write MB/s", stroke: "#1e3a8a", width: 2 },
                    { label: "Read MB/s", stroke: "#10b981", width: 2 }
                ],
                axes: [{ label: "Time (seconds)" }, { label: "MB/sec" }]
            }, [
                points.map(d => d.seconds),
                points.map(d => d.write_mbps),
                points.map(d => d.read_mbps)
            ], el);
        }
    </script>
    {{end}}
</body>
</html>
`
