package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int64
	}{
		{123, 123},
		{"456", 456},
		{int64(1) << 40, 1 << 40},
		{float64(10.0), 10},
		{uint32(7), 7},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt64(tt.input)
		if err != nil {
			t.Errorf("asInt64(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt64(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
	if _, err := asInt64("many"); err == nil {
		t.Error("asInt64(\"many\") should fail")
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{1.5, 1500 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsFloat64Slice(t *testing.T) {
	tests := []struct {
		input interface{}
		want  []float64
	}{
		{[]interface{}{50, 99.9, "99.99"}, []float64{50, 99.9, 99.99}},
		{"50, 95,99", []float64{50, 95, 99}},
		{nil, nil},
	}

	for _, tt := range tests {
		got, err := asFloat64Slice(tt.input)
		if err != nil {
			t.Errorf("asFloat64Slice(%v) error = %v", tt.input, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("asFloat64Slice(%v) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("asFloat64Slice(%v)[%d] = %v, want %v", tt.input, i, got[i], tt.want[i])
			}
		}
	}
	if _, err := asFloat64Slice("50,high"); err == nil {
		t.Error("expected error for non-numeric entry")
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"listen":          ":7000",
		"max_connections": 12,
		"zero_policy":     "UNLIMITED",
		"flush_interval":  "2s",
		"queue": map[string]interface{}{
			"entries":         32,
			"bytes":           "1048576",
			"enqueue_timeout": "50ms",
		},
		"latency": map[string]interface{}{
			"unit":                "us",
			"max":                 5000000,
			"significant_figures": 2,
			"percentiles":         []interface{}{50, 99},
		},
		"log": map[string]interface{}{
			"level":  "debug",
			"format": "json",
		},
		"tracing": map[string]interface{}{
			"endpoint":    "collector:4317",
			"sample_rate": 0.25,
			"propagate":   false,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want :7000", cfg.ListenAddr)
	}
	if cfg.MaxConnections != 12 || cfg.ZeroPolicy != "unlimited" {
		t.Errorf("admission = %d/%q, want 12/unlimited", cfg.MaxConnections, cfg.ZeroPolicy)
	}
	if cfg.FlushInterval != 2*time.Second {
		t.Errorf("FlushInterval = %v, want 2s", cfg.FlushInterval)
	}
	if cfg.Queue.Entries != 32 || cfg.Queue.Bytes != 1<<20 || cfg.Queue.EnqueueTimeout != 50*time.Millisecond {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.Latency.Unit != "us" || cfg.Latency.Max != 5000000 || cfg.Latency.SignificantFigures != 2 {
		t.Errorf("Latency = %+v", cfg.Latency)
	}
	if len(cfg.Latency.Percentiles) != 2 || cfg.Latency.Percentiles[1] != 99 {
		t.Errorf("Percentiles = %v, want [50 99]", cfg.Latency.Percentiles)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Tracing.Endpoint != "collector:4317" || cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.Propagate == nil || *cfg.Tracing.Propagate {
		t.Errorf("Tracing.Propagate = %v, want explicit false", cfg.Tracing.Propagate)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	tests := []map[string]interface{}{
		{"max_connections": []interface{}{1}},
		{"flush_interval": "soon"},
		{"queue": "big"},
		{"latency": map[string]interface{}{"percentiles": "fifty"}},
		{"tracing": map[string]interface{}{"insecure": "maybe"}},
	}
	for _, settings := range tests {
		if err := applyConfigSettings(Defaults(), settings); err == nil {
			t.Errorf("applyConfigSettings(%v) expected error", settings)
		}
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--max-connections=5",
		"--queue-entries=8",
		"--percentiles=50,99.9",
		"--threshold=write_latency:p99 < 20",
		"--tracing-propagate",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.MaxConnections != 5 {
		t.Errorf("MaxConnections = %d, want 5", cfg.MaxConnections)
	}
	if cfg.Queue.Entries != 8 {
		t.Errorf("Queue.Entries = %d, want 8", cfg.Queue.Entries)
	}
	if len(cfg.Latency.Percentiles) != 2 || cfg.Latency.Percentiles[1] != 99.9 {
		t.Errorf("Percentiles = %v, want [50 99.9]", cfg.Latency.Percentiles)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v, want one entry", cfg.Thresholds)
	}
	if cfg.Tracing.Propagate == nil || !*cfg.Tracing.Propagate {
		t.Error("Tracing.Propagate should be set to true")
	}
	// Untouched flags keep the existing values.
	if cfg.FlushInterval != DefaultFlushInterval {
		t.Errorf("FlushInterval = %v, want default", cfg.FlushInterval)
	}
}
