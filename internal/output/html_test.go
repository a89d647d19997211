package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/threshold"
)

func TestGenerateHTMLReport(t *testing.T) {
	totals := sampleTotals()
	windows := []metrics.Stats{
		{End: totals.Start.Add(5 * time.Second), Write: metrics.DirectionStats{MBPerSec: 1.5}},
		{End: totals.Start.Add(10 * time.Second), Write: metrics.DirectionStats{MBPerSec: 0.5}},
	}
	thresholds, err := threshold.ParseMultiple([]string{"write_latency:p50 < 20", "rejected:count == 0"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	results := threshold.NewEvaluator(thresholds).Evaluate(totals)

	var buf bytes.Buffer
	err = GenerateHTMLReport(&buf, totals, windows, Workers{MaxWriters: 4}, results, ReportMetadata{
		ListenAddr:    "127.0.0.1:9717",
		FlushInterval: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"<!DOCTYPE html>",
		"Benchhub Report",
		"127.0.0.1:9717",
		"throughput-chart",
		"Writes",
		"P99.9",
		"Thresholds (1/2 Passed)",
		"badge-error",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in HTML report", want)
		}
	}
	if strings.Contains(html, "<h2>Reads</h2>") {
		t.Error("empty read direction should be omitted")
	}
}

func TestGenerateHTMLReport_NoHistoryNoThresholds(t *testing.T) {
	var buf bytes.Buffer
	if err := GenerateHTMLReport(&buf, metrics.Stats{}, nil, Workers{}, nil, ReportMetadata{}); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "throughput-chart") {
		t.Error("chart should be omitted without history")
	}
	if strings.Contains(html, "Thresholds (") {
		t.Error("threshold section should be omitted without results")
	}
}

func TestGenerateHTMLReport_EscapesMetadata(t *testing.T) {
	var buf bytes.Buffer
	err := GenerateHTMLReport(&buf, metrics.Stats{}, nil, Workers{}, nil, ReportMetadata{ListenAddr: "<script>alert(1)</script>"})
	if err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	if strings.Contains(buf.String(), "<script>alert(1)</script>") {
		t.Error("listen address was not escaped")
	}
}
