package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torosent/benchhub/internal/admission"
	"github.com/torosent/benchhub/internal/engine"
	"github.com/torosent/benchhub/internal/logging"
	"github.com/torosent/benchhub/internal/metrics"
)

type Config struct {
	ListenAddr      string        `mapstructure:"listen"`
	MetricsAddr     string        `mapstructure:"metrics_listen"`
	MaxConnections  int64         `mapstructure:"max_connections"`
	ZeroPolicy      string        `mapstructure:"zero_policy"`
	MaxScrapers     int64         `mapstructure:"max_scrapers"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	IdleInterval    time.Duration `mapstructure:"idle_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Queue           QueueConfig   `mapstructure:"queue"`
	Latency         LatencyConfig `mapstructure:"latency"`
	JSONOutput      bool          `mapstructure:"json_output"`
	HTMLOutput      string        `mapstructure:"html_output"`
	Progress        bool          `mapstructure:"progress"`
	Log             LogConfig     `mapstructure:"log"`
	Thresholds      []string      `mapstructure:"thresholds"`
	Tracing         TracingConfig `mapstructure:"tracing"`
	ConfigFile      string        `mapstructure:"-"`
}

type QueueConfig struct {
	Entries        int           `mapstructure:"entries"`         // max queued batches
	Bytes          int64         `mapstructure:"bytes"`           // max queued payload bytes (0=unlimited)
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"` // wait for a free slot (0=fail fast)
}

type LatencyConfig struct {
	Unit               string    `mapstructure:"unit"` // ns, us or ms
	Min                int64     `mapstructure:"min"`
	Max                int64     `mapstructure:"max"`
	SignificantFigures int       `mapstructure:"significant_figures"`
	Percentiles        []float64 `mapstructure:"percentiles"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`     // OTLP collector host:port
	Protocol    string  `mapstructure:"protocol"`     // grpc or http
	Insecure    bool    `mapstructure:"insecure"`     // plaintext export
	ServiceName string  `mapstructure:"service_name"` // defaults to OTEL_SERVICE_NAME, then benchhub
	SampleRate  float64 `mapstructure:"sample_rate"`  // 0.0 to 1.0
	Propagate   *bool   `mapstructure:"propagate"`    // nil follows Enabled
}

// Enabled reports whether an OTLP endpoint is configured, directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether trace context is exchanged with workers.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// WindowConfig converts the latency settings for the aggregation engine.
func (c Config) WindowConfig() (metrics.WindowConfig, error) {
	unit, err := metrics.ParseLatencyUnit(c.Latency.Unit)
	if err != nil {
		return metrics.WindowConfig{}, err
	}
	return metrics.WindowConfig{
		Unit:               unit,
		MinLatency:         c.Latency.Min,
		MaxLatency:         c.Latency.Max,
		SignificantFigures: c.Latency.SignificantFigures,
		Percentiles:        append([]float64(nil), c.Latency.Percentiles...),
	}, nil
}

// EngineConfig assembles the aggregation engine settings.
func (c Config) EngineConfig() (engine.Config, error) {
	window, err := c.WindowConfig()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		QueueEntries:   c.Queue.Entries,
		QueueBytes:     c.Queue.Bytes,
		FlushInterval:  c.FlushInterval,
		IdleInterval:   c.IdleInterval,
		EnqueueTimeout: c.Queue.EnqueueTimeout,
		Window:         window,
	}, nil
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.ListenAddr) == "" {
		issues = append(issues, "listen address is required")
	}
	if c.MaxConnections < 0 {
		issues = append(issues, "max-connections must be >= 0")
	}
	if c.MaxScrapers < 0 {
		issues = append(issues, "max-scrapers must be >= 0")
	}
	if _, err := admission.ParseZeroPolicy(c.ZeroPolicy); err != nil {
		issues = append(issues, err.Error())
	}
	if c.FlushInterval <= 0 {
		issues = append(issues, "flush-interval must be > 0")
	}
	if c.IdleInterval < 0 {
		issues = append(issues, "idle-interval must be >= 0")
	}
	if c.ShutdownTimeout < 0 {
		issues = append(issues, "shutdown-timeout must be >= 0")
	}
	issues = append(issues, validateQueueConfig(c.Queue)...)
	issues = append(issues, validateLatencyConfig(c.Latency)...)

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		issues = append(issues, err.Error())
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		issues = append(issues, err.Error())
	}
	if c.JSONOutput && c.Progress {
		issues = append(issues, "progress and json-output are mutually exclusive")
	}
	for i, th := range c.Thresholds {
		if strings.TrimSpace(th) == "" {
			issues = append(issues, fmt.Sprintf("thresholds[%d]: must not be empty", i))
		}
	}
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	// Without a ceiling the only protection is the queue bound.
	if c.MaxConnections == 0 && strings.EqualFold(strings.TrimSpace(c.ZeroPolicy), string(admission.ZeroUnlimited)) {
		fmt.Fprintln(os.Stderr, "WARNING: max-connections=0 with zero-policy=unlimited admits any number of workers.")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateQueueConfig(q QueueConfig) []string {
	var issues []string
	if q.Entries < 1 {
		issues = append(issues, "queue entries must be >= 1")
	}
	if q.Bytes < 0 {
		issues = append(issues, "queue bytes must be >= 0")
	}
	if q.EnqueueTimeout < 0 {
		issues = append(issues, "enqueue-timeout must be >= 0")
	}
	return issues
}

func validateLatencyConfig(l LatencyConfig) []string {
	unit, err := metrics.ParseLatencyUnit(l.Unit)
	if err != nil {
		return []string{err.Error()}
	}
	window := metrics.WindowConfig{
		Unit:               unit,
		MinLatency:         l.Min,
		MaxLatency:         l.Max,
		SignificantFigures: l.SignificantFigures,
		Percentiles:        l.Percentiles,
	}
	if err := window.Validate(); err != nil {
		return []string{err.Error()}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
