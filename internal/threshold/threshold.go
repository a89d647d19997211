package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/benchhub/internal/metrics"
)

// Threshold represents an assertion on the final totals that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "write_latency", "read_records", "rejected"
	Aggregate string  // e.g., "p99", "p99.9", "avg", "max", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against aggregated stats.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Len returns the number of configured thresholds.
func (e *Evaluator) Len() int { return len(e.thresholds) }

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, stats))
	}
	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func (e *Evaluator) evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Actual:    0,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9.]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "write_latency:p95 < 500"     (latency percentile in the server's unit)
// - "read_latency:p99.9 < 900"    (any configured percentile)
// - "write_latency:avg < 200"     (average latency)
// - "read_latency:max < 1000"     (max latency)
// - "write_records:rate > 1000"   (records per second)
// - "read_bytes:rate > 50"        (MB per second)
// - "write_records:count > 0"     (total records)
// - "rejected:count < 10"         (rejected batches)
// - "discarded:count == 0"        (out-of-range and worker-side discards)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'write_latency:p95 < 500')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}

	if !isValidAggregate(metric, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s", aggregate, metric)
	}

	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

var validMetrics = []string{
	"write_latency", "read_latency",
	"write_records", "read_records",
	"write_bytes", "read_bytes",
	"rejected", "discarded",
}

func isValidMetric(metric string) bool {
	for _, v := range validMetrics {
		if metric == v {
			return true
		}
	}
	return false
}

func isValidAggregate(metric, aggregate string) bool {
	switch metric {
	case "write_latency", "read_latency":
		if _, ok := percentileOf(aggregate); ok {
			return true
		}
		return aggregate == "avg" || aggregate == "mean" || aggregate == "min" || aggregate == "max"
	case "write_records", "read_records", "write_bytes", "read_bytes":
		return aggregate == "count" || aggregate == "rate"
	default:
		return aggregate == "count"
	}
}

// percentileOf parses aggregates such as "p50" or "p99.99".
func percentileOf(aggregate string) (float64, bool) {
	if !strings.HasPrefix(aggregate, "p") {
		return 0, false
	}
	p, err := strconv.ParseFloat(aggregate[1:], 64)
	if err != nil || p <= 0 || p > 100 {
		return 0, false
	}
	return p, true
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	for _, v := range valid {
		if operator == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch t.Metric {
	case "write_latency":
		return extractLatencyMetric(t.Aggregate, stats.Write)
	case "read_latency":
		return extractLatencyMetric(t.Aggregate, stats.Read)
	case "write_records":
		return extractRecordMetric(t.Aggregate, stats.Write)
	case "read_records":
		return extractRecordMetric(t.Aggregate, stats.Read)
	case "write_bytes":
		return extractByteMetric(t.Aggregate, stats.Write)
	case "read_bytes":
		return extractByteMetric(t.Aggregate, stats.Read)
	case "rejected":
		return float64(stats.Rejected), nil
	case "discarded":
		return float64(stats.Discarded + stats.Write.LowDiscards + stats.Write.HighDiscards +
			stats.Read.LowDiscards + stats.Read.HighDiscards), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, d metrics.DirectionStats) (float64, error) {
	switch aggregate {
	case "avg", "mean":
		return d.AvgLatency, nil
	case "min":
		return float64(d.MinLatency), nil
	case "max":
		return float64(d.MaxLatency), nil
	}
	p, ok := percentileOf(aggregate)
	if !ok {
		return 0, fmt.Errorf("unsupported latency aggregate %q", aggregate)
	}
	v, ok := d.Percentile(p)
	if !ok {
		return 0, fmt.Errorf("percentile %g is not in the configured percentile list", p)
	}
	return float64(v), nil
}

func extractRecordMetric(aggregate string, d metrics.DirectionStats) (float64, error) {
	switch aggregate {
	case "count":
		return float64(d.Records), nil
	case "rate":
		return d.RecordsPerSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for records (use 'count' or 'rate')", aggregate)
	}
}

func extractByteMetric(aggregate string, d metrics.DirectionStats) (float64, error) {
	switch aggregate {
	case "count":
		return float64(d.Bytes), nil
	case "rate":
		return d.MBPerSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for bytes (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
