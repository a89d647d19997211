package threshold

import (
	"testing"
	"time"

	"github.com/torosent/benchhub/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "valid p95 write latency threshold",
			input: "write_latency:p95 < 500",
			want: Threshold{
				Metric:    "write_latency",
				Aggregate: "p95",
				Operator:  "<",
				Value:     500,
				Raw:       "write_latency:p95 < 500",
			},
		},
		{
			name:  "fractional percentile",
			input: "read_latency:p99.9 <= 1000",
			want: Threshold{
				Metric:    "read_latency",
				Aggregate: "p99.9",
				Operator:  "<=",
				Value:     1000,
				Raw:       "read_latency:p99.9 <= 1000",
			},
		},
		{
			name:  "record rate with >",
			input: "write_records:rate > 100",
			want: Threshold{
				Metric:    "write_records",
				Aggregate: "rate",
				Operator:  ">",
				Value:     100,
				Raw:       "write_records:rate > 100",
			},
		},
		{
			name:  "rejected count",
			input: "rejected:count == 0",
			want: Threshold{
				Metric:    "rejected",
				Aggregate: "count",
				Operator:  "==",
				Value:     0,
				Raw:       "rejected:count == 0",
			},
		},
		{
			name:      "empty string",
			input:     "",
			wantError: true,
		},
		{
			name:      "invalid format - missing operator",
			input:     "write_latency:p95 500",
			wantError: true,
		},
		{
			name:      "invalid metric",
			input:     "http_req_duration:p95 < 500",
			wantError: true,
		},
		{
			name:      "percentile out of range",
			input:     "write_latency:p101 < 500",
			wantError: true,
		},
		{
			name:      "rate on latency",
			input:     "read_latency:rate < 500",
			wantError: true,
		},
		{
			name:      "percentile on counter",
			input:     "rejected:p99 < 5",
			wantError: true,
		},
		{
			name:      "invalid operator",
			input:     "write_latency:p95 << 500",
			wantError: true,
		},
		{
			name:      "invalid value - not a number",
			input:     "write_latency:p95 < abc",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("Parse() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name: "multiple valid thresholds",
			input: []string{
				"write_latency:p95 < 500",
				"read_records:count > 10",
				"discarded:count < 5",
			},
			wantCount: 3,
		},
		{
			name:      "empty slice",
			input:     []string{},
			wantCount: 0,
		},
		{
			name: "one valid, one invalid",
			input: []string{
				"write_latency:p95 < 500",
				"invalid threshold",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func sampleStats() metrics.Stats {
	return metrics.Stats{
		Duration: 10 * time.Second,
		Write: metrics.DirectionStats{
			Records:       1000,
			Bytes:         4 << 20,
			MinLatency:    10,
			MaxLatency:    500,
			AvgLatency:    100.75,
			RecordsPerSec: 100,
			MBPerSec:      0.4,
			Percentiles: []metrics.PercentileValue{
				{Percentile: 50, Value: 80},
				{Percentile: 99, Value: 400},
				{Percentile: 99.9, Value: 480},
			},
			LowDiscards:  1,
			HighDiscards: 2,
		},
		Read: metrics.DirectionStats{
			Records:       500,
			RecordsPerSec: 50,
			Percentiles:   []metrics.PercentileValue{{Percentile: 99, Value: 30}},
		},
		Discarded: 3,
		Rejected:  4,
	}
}

func TestEvaluator(t *testing.T) {
	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name: "all thresholds pass",
			thresholds: []string{
				"write_latency:p99 < 500",
				"rejected:count < 5",
				"write_records:rate > 50",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "some thresholds fail",
			thresholds: []string{
				"write_latency:p99 < 300",
				"rejected:count == 0",
				"read_records:count >= 500",
			},
			wantPass: []bool{false, false, true},
		},
		{
			name: "unconfigured percentile fails",
			thresholds: []string{
				"write_latency:p95 < 1000",
				"write_latency:p99.9 < 500",
			},
			wantPass: []bool{false, true},
		},
		{
			name: "avg, min and max latency",
			thresholds: []string{
				"write_latency:avg < 150",
				"write_latency:max < 600",
				"write_latency:min > 5",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name:       "discards include out-of-range samples",
			thresholds: []string{"discarded:count == 6"},
			wantPass:   []bool{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			evaluator := NewEvaluator(thresholds)
			results := evaluator.Evaluate(sampleStats())

			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}

			wantFailed := 0
			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f)",
						i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
				if !tt.wantPass[i] {
					wantFailed++
				}
			}
			if got := Failed(results); got != wantFailed {
				t.Errorf("Failed() = %d, want %d", got, wantFailed)
			}
		})
	}
}

func TestEvaluatorWithoutThresholds(t *testing.T) {
	e := NewEvaluator(nil)
	if e.Len() != 0 {
		t.Errorf("Len() = %d", e.Len())
	}
	if results := e.Evaluate(sampleStats()); results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestExtractMetricValue(t *testing.T) {
	stats := sampleStats()

	tests := []struct {
		name      string
		threshold Threshold
		want      float64
		wantError bool
	}{
		{"write_latency p50", Threshold{Metric: "write_latency", Aggregate: "p50"}, 80, false},
		{"write_latency p99.9", Threshold{Metric: "write_latency", Aggregate: "p99.9"}, 480, false},
		{"write_latency avg", Threshold{Metric: "write_latency", Aggregate: "avg"}, 100.75, false},
		{"write_latency max", Threshold{Metric: "write_latency", Aggregate: "max"}, 500, false},
		{"read_latency p99", Threshold{Metric: "read_latency", Aggregate: "p99"}, 30, false},
		{"write_records count", Threshold{Metric: "write_records", Aggregate: "count"}, 1000, false},
		{"read_records rate", Threshold{Metric: "read_records", Aggregate: "rate"}, 50, false},
		{"write_bytes count", Threshold{Metric: "write_bytes", Aggregate: "count"}, 4 << 20, false},
		{"write_bytes rate", Threshold{Metric: "write_bytes", Aggregate: "rate"}, 0.4, false},
		{"rejected", Threshold{Metric: "rejected", Aggregate: "count"}, 4, false},
		{"unconfigured percentile", Threshold{Metric: "read_latency", Aggregate: "p50"}, 0, true},
		{"unsupported metric", Threshold{Metric: "invalid_metric", Aggregate: "p95"}, 0, true},
		{"unsupported aggregate for metric", Threshold{Metric: "write_records", Aggregate: "p95"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractMetricValue(tt.threshold, stats)
			if (err != nil) != tt.wantError {
				t.Errorf("extractMetricValue() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("extractMetricValue() = %v, want %v", got, tt.want)
			}
		})
	}
}
