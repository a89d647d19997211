package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/benchhub/internal/admission"
	"github.com/torosent/benchhub/internal/metrics"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used when neither a file nor a flag
// sets a value.
func Defaults() *Config {
	return &Config{
		ListenAddr:      DefaultListenAddr,
		MetricsAddr:     DefaultMetricsAddr,
		MaxConnections:  DefaultMaxConnections,
		MaxScrapers:     DefaultMaxScrapers,
		ZeroPolicy:      string(admission.ZeroRejects),
		FlushInterval:   DefaultFlushInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
		Queue: QueueConfig{
			Entries: DefaultQueueEntries,
			Bytes:   DefaultQueueBytes,
		},
		Latency: LatencyConfig{
			Unit:               string(metrics.UnitMilliseconds),
			Max:                DefaultMaxLatency,
			SignificantFigures: DefaultSigFigs,
			Percentiles:        append([]float64(nil), metrics.DefaultPercentiles...),
		},
		Log:     LogConfig{Level: "info", Format: "console"},
		Tracing: TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(extra, " "))
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.MetricsAddr = strings.TrimSpace(cfg.MetricsAddr)

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "listen", "listen_addr", "listen-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		cfg.ListenAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "metricslisten", "metrics_listen", "metrics-listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metricsListen: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "maxconnections", "max_connections", "max-connections"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("maxConnections: %w", err)
		}
		cfg.MaxConnections = val
	}

	if raw, ok := lookupSetting(settings, "zeropolicy", "zero_policy", "zero-policy"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("zeroPolicy: %w", err)
		}
		cfg.ZeroPolicy = strings.ToLower(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "maxscrapers", "max_scrapers", "max-scrapers"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("maxScrapers: %w", err)
		}
		cfg.MaxScrapers = val
	}

	if raw, ok := lookupSetting(settings, "flushinterval", "flush_interval", "flush-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("flushInterval: %w", err)
		}
		cfg.FlushInterval = dur
	}

	if raw, ok := lookupSetting(settings, "idleinterval", "idle_interval", "idle-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("idleInterval: %w", err)
		}
		cfg.IdleInterval = dur
	}

	if raw, ok := lookupSetting(settings, "shutdowntimeout", "shutdown_timeout", "shutdown-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("shutdownTimeout: %w", err)
		}
		cfg.ShutdownTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "queue"); ok {
		if err := parseQueueConfig(raw, &cfg.Queue); err != nil {
			return fmt.Errorf("queue: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "latency"); ok {
		if err := parseLatencyConfig(raw, &cfg.Latency); err != nil {
			return fmt.Errorf("latency: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "htmloutput", "html_output", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("htmlOutput: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		if err := parseLogConfig(raw, &cfg.Log); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracingConfig(raw, &cfg.Tracing); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func parseQueueConfig(value interface{}, q *QueueConfig) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "entries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("entries: %w", err)
		}
		q.Entries = val
	}
	if raw, ok := lookupSetting(settings, "bytes"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
		q.Bytes = val
	}
	if raw, ok := lookupSetting(settings, "enqueuetimeout", "enqueue_timeout", "enqueue-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("enqueue_timeout: %w", err)
		}
		q.EnqueueTimeout = dur
	}
	return nil
}

func parseLatencyConfig(value interface{}, l *LatencyConfig) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "unit"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("unit: %w", err)
		}
		l.Unit = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "min"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("min: %w", err)
		}
		l.Min = val
	}
	if raw, ok := lookupSetting(settings, "max"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("max: %w", err)
		}
		l.Max = val
	}
	if raw, ok := lookupSetting(settings, "significantfigures", "significant_figures", "significant-figures"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("significant_figures: %w", err)
		}
		l.SignificantFigures = val
	}
	if raw, ok := lookupSetting(settings, "percentiles"); ok {
		val, err := asFloat64Slice(raw)
		if err != nil {
			return fmt.Errorf("percentiles: %w", err)
		}
		l.Percentiles = val
	}
	return nil
}

func parseLogConfig(value interface{}, lc *LogConfig) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("level: %w", err)
		}
		lc.Level = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		lc.Format = strings.TrimSpace(val)
	}
	return nil
}

func parseTracingConfig(value interface{}, t *TracingConfig) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
