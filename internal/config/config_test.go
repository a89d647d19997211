package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/benchhub/internal/config"
	"github.com/torosent/benchhub/internal/metrics"
)

func TestParseFlagsDefaults(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.MetricsAddr != config.DefaultMetricsAddr {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, config.DefaultMetricsAddr)
	}
	if cfg.MaxConnections != config.DefaultMaxConnections || cfg.MaxScrapers != config.DefaultMaxScrapers || cfg.ZeroPolicy != "reject" {
		t.Errorf("admission = %d/%d/%q", cfg.MaxConnections, cfg.MaxScrapers, cfg.ZeroPolicy)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %s, want 5s", cfg.FlushInterval)
	}
	if cfg.Queue.Entries != config.DefaultQueueEntries || cfg.Queue.Bytes != 64<<20 {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.Latency.Unit != "ms" || cfg.Latency.Max != 180000 || cfg.Latency.SignificantFigures != 3 {
		t.Errorf("Latency = %+v", cfg.Latency)
	}
	if len(cfg.Latency.Percentiles) != len(metrics.DefaultPercentiles) {
		t.Errorf("Percentiles = %v", cfg.Latency.Percentiles)
	}
	if cfg.Tracing.SampleRate != 1.0 || cfg.Tracing.Enabled() || cfg.Tracing.ShouldPropagate() {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("expected ErrHelpRequested, got %v", err)
	}
}

func TestLoadRejectsPositionalArgs(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"serve"}); err == nil {
		t.Fatal("expected error for positional argument")
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"listen": ":7100",
		"metrics_listen": "",
		"max_connections": 4,
		"flush_interval": "1s",
		"queue": {"entries": 64, "bytes": 0},
		"latency": {"unit": "us", "max": 60000000, "percentiles": [50, 99]},
		"json_output": true,
		"thresholds": ["write_latency:p99 < 100"]
	}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
	if cfg.ListenAddr != ":7100" || cfg.MetricsAddr != "" {
		t.Errorf("addresses = %q/%q", cfg.ListenAddr, cfg.MetricsAddr)
	}
	if cfg.MaxConnections != 4 || cfg.FlushInterval != time.Second {
		t.Errorf("MaxConnections/FlushInterval = %d/%s", cfg.MaxConnections, cfg.FlushInterval)
	}
	if cfg.Queue.Entries != 64 || cfg.Queue.Bytes != 0 {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.Latency.Unit != "us" || cfg.Latency.Max != 60000000 {
		t.Errorf("Latency = %+v", cfg.Latency)
	}
	if !cfg.JSONOutput || len(cfg.Thresholds) != 1 {
		t.Errorf("JSONOutput/Thresholds = %v/%v", cfg.JSONOutput, cfg.Thresholds)
	}
}

func TestLoadConfigFileYAMLWithOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`
max_connections: 10
zero_policy: unlimited
queue:
  entries: 128
  enqueue_timeout: 25ms
log:
  level: warn
  format: json
tracing:
  endpoint: localhost:4318
  protocol: http
  sample_rate: 0.5
`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--max-connections", "20", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxConnections != 20 {
		t.Errorf("MaxConnections = %d, want flag value 20", cfg.MaxConnections)
	}
	if cfg.ZeroPolicy != "unlimited" {
		t.Errorf("ZeroPolicy = %q, want unlimited", cfg.ZeroPolicy)
	}
	if cfg.Queue.Entries != 128 || cfg.Queue.EnqueueTimeout != 25*time.Millisecond {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Tracing.Protocol != "http" || cfg.Tracing.SampleRate != 0.5 || !cfg.Tracing.Enabled() {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateCollectsAllIssues(t *testing.T) {
	cfg := config.Defaults()
	cfg.ListenAddr = " "
	cfg.MaxConnections = -1
	cfg.ZeroPolicy = "sometimes"
	cfg.FlushInterval = 0
	cfg.Queue.Entries = 0
	cfg.Latency.Unit = "s"
	cfg.Log.Format = "xml"
	cfg.JSONOutput = true
	cfg.Progress = true
	cfg.Tracing.Protocol = "udp"
	cfg.Tracing.SampleRate = 2

	err := cfg.Validate()
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T %v", err, err)
	}
	issues := verr.Issues()
	if len(issues) != 10 {
		t.Fatalf("got %d issues, want 10: %v", len(issues), issues)
	}
	for _, want := range []string{"listen address", "max-connections", "zero ceiling policy", "flush-interval", "queue entries", "log format", "mutually exclusive", "tracing protocol", "sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateLatencyBounds(t *testing.T) {
	cfg := config.Defaults()
	cfg.Latency.Min = 100
	cfg.Latency.Max = 150
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when max latency is below twice the minimum")
	}

	cfg = config.Defaults()
	cfg.Latency.SignificantFigures = 6
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for six significant figures")
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Queue.EnqueueTimeout = 20 * time.Millisecond
	cfg.Latency.Unit = "ns"

	ec, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig() error = %v", err)
	}
	if ec.QueueEntries != cfg.Queue.Entries || ec.QueueBytes != cfg.Queue.Bytes || ec.EnqueueTimeout != 20*time.Millisecond {
		t.Errorf("queue settings not carried: %+v", ec)
	}
	if ec.FlushInterval != cfg.FlushInterval {
		t.Errorf("FlushInterval = %v", ec.FlushInterval)
	}
	if ec.Window.Unit != metrics.UnitNanoseconds || ec.Window.SignificantFigures != 3 {
		t.Errorf("Window = %+v", ec.Window)
	}
	if err := ec.Validate(); err != nil {
		t.Errorf("engine config should validate: %v", err)
	}

	ec.Window.Percentiles[0] = 1
	if cfg.Latency.Percentiles[0] == 1 {
		t.Error("EngineConfig must copy the percentile list")
	}
}

func TestTracingPropagateOverride(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	off := false
	tc := config.TracingConfig{Endpoint: "collector:4317", Propagate: &off}
	if !tc.Enabled() || tc.ShouldPropagate() {
		t.Errorf("Enabled/ShouldPropagate = %v/%v, want true/false", tc.Enabled(), tc.ShouldPropagate())
	}
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://env:4318")
	if !(config.TracingConfig{}).Enabled() {
		t.Error("environment endpoint should enable tracing")
	}
}
