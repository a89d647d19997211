package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/benchhub/internal/admission"
	"github.com/torosent/benchhub/internal/metrics"
)

const (
	DefaultListenAddr      = ":9717"
	DefaultMetricsAddr     = ":9718"
	DefaultMaxConnections  = 1000
	DefaultMaxScrapers     = 16
	DefaultQueueEntries    = 4096
	DefaultQueueBytes      = 64 << 20
	DefaultFlushInterval   = 5 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxLatency      = 180000
	DefaultSigFigs         = 3
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "benchhub",
		Short:         "Aggregate latency samples streamed by benchmark workers",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Listeners and admission
	flags.String("listen", DefaultListenAddr, "Address for the worker RPC service")
	flags.String("metrics-listen", DefaultMetricsAddr, "Address for the Prometheus metrics endpoint (empty disables it)")
	flags.Int64("max-connections", DefaultMaxConnections, "Maximum concurrently registered workers (0 follows --zero-policy)")
	flags.String("zero-policy", string(admission.ZeroRejects), "Meaning of a zero ceiling: 'reject' or 'unlimited'")
	flags.Int64("max-scrapers", DefaultMaxScrapers, "Maximum concurrent metrics scrapes (0 follows --zero-policy)")

	// Aggregation engine
	flags.Int("queue-entries", DefaultQueueEntries, "Maximum sample batches waiting to be merged")
	flags.Int64("queue-bytes", DefaultQueueBytes, "Maximum queued payload bytes (0=unlimited)")
	flags.Duration("enqueue-timeout", 0, "How long a submit may wait for a free queue slot (0=fail fast)")
	flags.Duration("flush-interval", DefaultFlushInterval, "Length of one reporting window")
	flags.Duration("idle-interval", 0, "Longest wait for the next batch (0=min(flush-interval, 100ms))")
	flags.Duration("shutdown-timeout", DefaultShutdownTimeout, "Max time to drain the queue and stop listeners")

	// Latency histogram
	flags.String("latency-unit", string(metrics.UnitMilliseconds), "Unit of submitted latencies: 'ns', 'us' or 'ms'")
	flags.Int64("min-latency", 0, "Lowest latency tracked; smaller samples are discarded")
	flags.Int64("max-latency", DefaultMaxLatency, "Highest latency tracked; larger samples are discarded")
	flags.Int("significant-figures", DefaultSigFigs, "Histogram precision in significant decimal digits (1-5)")
	flags.Float64Slice("percentiles", metrics.DefaultPercentiles, "Percentiles reported per window")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.Bool("progress", false, "Print a periodic status line to stderr")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log format: 'console' or 'json'")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'write_latency:p99 < 50')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Export traces without TLS")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of root spans sampled (0.0-1.0)")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Bool("tracing-propagate", false, "Accept W3C trace context from workers even without an exporter")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("listen") {
		val, err := fs.GetString("listen")
		if err != nil {
			return err
		}
		cfg.ListenAddr = strings.TrimSpace(val)
	}
	if fs.Changed("metrics-listen") {
		val, err := fs.GetString("metrics-listen")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if fs.Changed("max-connections") {
		val, err := fs.GetInt64("max-connections")
		if err != nil {
			return err
		}
		cfg.MaxConnections = val
	}
	if fs.Changed("zero-policy") {
		val, err := fs.GetString("zero-policy")
		if err != nil {
			return err
		}
		cfg.ZeroPolicy = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("max-scrapers") {
		val, err := fs.GetInt64("max-scrapers")
		if err != nil {
			return err
		}
		cfg.MaxScrapers = val
	}

	if fs.Changed("queue-entries") {
		val, err := fs.GetInt("queue-entries")
		if err != nil {
			return err
		}
		cfg.Queue.Entries = val
	}
	if fs.Changed("queue-bytes") {
		val, err := fs.GetInt64("queue-bytes")
		if err != nil {
			return err
		}
		cfg.Queue.Bytes = val
	}
	if fs.Changed("enqueue-timeout") {
		val, err := fs.GetDuration("enqueue-timeout")
		if err != nil {
			return err
		}
		cfg.Queue.EnqueueTimeout = val
	}
	if fs.Changed("flush-interval") {
		val, err := fs.GetDuration("flush-interval")
		if err != nil {
			return err
		}
		cfg.FlushInterval = val
	}
	if fs.Changed("idle-interval") {
		val, err := fs.GetDuration("idle-interval")
		if err != nil {
			return err
		}
		cfg.IdleInterval = val
	}
	if fs.Changed("shutdown-timeout") {
		val, err := fs.GetDuration("shutdown-timeout")
		if err != nil {
			return err
		}
		cfg.ShutdownTimeout = val
	}

	if fs.Changed("latency-unit") {
		val, err := fs.GetString("latency-unit")
		if err != nil {
			return err
		}
		cfg.Latency.Unit = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("min-latency") {
		val, err := fs.GetInt64("min-latency")
		if err != nil {
			return err
		}
		cfg.Latency.Min = val
	}
	if fs.Changed("max-latency") {
		val, err := fs.GetInt64("max-latency")
		if err != nil {
			return err
		}
		cfg.Latency.Max = val
	}
	if fs.Changed("significant-figures") {
		val, err := fs.GetInt("significant-figures")
		if err != nil {
			return err
		}
		cfg.Latency.SignificantFigures = val
	}
	if fs.Changed("percentiles") {
		val, err := fs.GetFloat64Slice("percentiles")
		if err != nil {
			return err
		}
		cfg.Latency.Percentiles = val
	}

	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.Log.Level = strings.TrimSpace(val)
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.Log.Format = strings.TrimSpace(val)
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	return nil
}
