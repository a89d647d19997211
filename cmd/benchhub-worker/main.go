// Command benchhub-worker registers with a benchhub server and streams
// synthetic latency batches to it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/benchhub/internal/config"
	"github.com/torosent/benchhub/internal/logging"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/registry"
	"github.com/torosent/benchhub/internal/rpc"
	"github.com/torosent/benchhub/internal/tracing"
	"github.com/torosent/benchhub/internal/worker"
)

type options struct {
	server   string
	timeout  time.Duration
	useTLS   bool
	insecure bool
	metadata map[string]string

	storage        string
	readers        int
	writers        int
	maxConnections int

	concurrency int
	batches     int
	duration    time.Duration
	rate        float64
	arrival     string
	retries     int

	recordsPerBatch int
	recordSize      int64
	samplesPerBatch int
	meanLatency     int64
	seed            int64

	logLevel string
	tracing  config.TracingConfig
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newCommand(stdout)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newCommand(stdout io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "benchhub-worker",
		Short:         "Stream synthetic benchmark samples to a benchhub server",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), opts, stdout)
		},
	}
	cmd.SetOut(stdout)

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "localhost"+config.DefaultListenAddr, "Aggregation server address")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-call timeout")
	flags.BoolVar(&opts.useTLS, "tls", false, "Use TLS for the server connection")
	flags.BoolVar(&opts.insecure, "insecure", false, "Skip TLS verification")
	flags.StringToStringVar(&opts.metadata, "metadata", nil, "gRPC metadata key=value pairs")

	flags.StringVar(&opts.storage, "storage", "synthetic", "Storage system name reported at registration")
	flags.IntVar(&opts.readers, "readers", 0, "Simulated readers")
	flags.IntVar(&opts.writers, "writers", 1, "Simulated writers")
	flags.IntVar(&opts.maxConnections, "max-connections", 0, "Client-local connection ceiling reported at registration")

	flags.IntVarP(&opts.concurrency, "concurrency", "c", 1, "Concurrent senders")
	flags.IntVarP(&opts.batches, "batches", "n", 0, "Batches to send (0 means until --duration or interrupted)")
	flags.DurationVarP(&opts.duration, "duration", "d", 0, "How long to send (e.g. 30s, 1m)")
	flags.Float64VarP(&opts.rate, "rate", "r", 0, "Batches per second (0 means unlimited)")
	flags.StringVar(&opts.arrival, "arrival-model", string(worker.ArrivalUniform), "Arrival model: 'uniform' or 'poisson'")
	flags.IntVar(&opts.retries, "retries", 5, "Retries per batch when the server signals backpressure")

	flags.IntVar(&opts.recordsPerBatch, "records-per-batch", 100, "Records per reader or writer per batch")
	flags.Int64Var(&opts.recordSize, "record-size", 1024, "Bytes per record")
	flags.IntVar(&opts.samplesPerBatch, "samples-per-batch", 16, "Latency samples per direction per batch")
	flags.Int64Var(&opts.meanLatency, "mean-latency", 5, "Mean simulated latency in the server's unit")
	flags.Int64Var(&opts.seed, "seed", 0, "Random seed (0 uses the clock)")

	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.tracing.Endpoint, "tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.StringVar(&opts.tracing.Protocol, "tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.BoolVar(&opts.tracing.Insecure, "tracing-insecure", false, "Export traces without TLS")
	flags.Float64Var(&opts.tracing.SampleRate, "tracing-sample-rate", 1.0, "Fraction of root spans sampled (0.0-1.0)")
	return cmd
}

func (o *options) validate() error {
	var issues []string
	if strings.TrimSpace(o.server) == "" {
		issues = append(issues, "server is required")
	}
	if o.readers < 0 || o.writers < 0 {
		issues = append(issues, "readers and writers must be >= 0")
	}
	if o.readers == 0 && o.writers == 0 {
		issues = append(issues, "at least one reader or writer is required")
	}
	if o.concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if o.batches < 0 || o.rate < 0 || o.retries < 0 {
		issues = append(issues, "batches, rate and retries must be >= 0")
	}
	switch worker.ArrivalModel(strings.ToLower(o.arrival)) {
	case worker.ArrivalUniform, worker.ArrivalPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival-model must be uniform or poisson, got %q", o.arrival))
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid options: %s", strings.Join(issues, "; "))
	}
	return nil
}

func execute(ctx context.Context, o *options, stdout io.Writer) error {
	if err := o.validate(); err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: o.logLevel})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("worker")

	provider, err := tracing.Init(ctx, o.tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(sctx)
	}()

	client, err := rpc.Dial(rpc.ClientConfig{
		Target:    o.server,
		Metadata:  o.metadata,
		Timeout:   o.timeout,
		UseTLS:    o.useTLS,
		Insecure:  o.insecure,
		Propagate: provider.ShouldPropagate(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	server, err := client.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetch server config: %w", err)
	}
	log.Info("connected",
		zap.String("server", o.server),
		zap.String("latency_unit", server.LatencyUnit),
		zap.Int64("connections", server.Connections),
		zap.Int64("max_connections", server.MaxConnections),
	)

	sess, err := worker.Open(ctx, client, registry.ClientConfig{
		StorageName:    o.storage,
		Readers:        o.readers,
		Writers:        o.writers,
		MaxConnections: o.maxConnections,
	})
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if err := sess.Close(cctx); err != nil {
			log.Warn("close session", zap.Error(err))
		}
	}()

	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	submitter := worker.WithRetry(traced(provider.Tracer(), sess), worker.BackpressurePolicy(o.retries))
	pump := worker.New(worker.Options{
		Concurrency:   o.concurrency,
		Batches:       o.batches,
		Duration:      o.duration,
		RatePerSecond: o.rate,
		Arrival:       worker.ArrivalModel(strings.ToLower(o.arrival)),
		RandomSeed:    seed,
		Source: worker.NewSyntheticSource(worker.SyntheticConfig{
			Writers:         o.writers,
			Readers:         o.readers,
			RecordsPerBatch: o.recordsPerBatch,
			RecordSize:      o.recordSize,
			SamplesPerBatch: o.samplesPerBatch,
			MeanLatency:     o.meanLatency,
			Seed:            seed,
		}),
		Submitter: submitter,
	})

	res := pump.Run(ctx)
	printSummary(stdout, sess.ID(), res, submitter.Retries(), client.Stats())
	if res.Err != nil {
		return res.Err
	}
	if res.Errors > 0 {
		return fmt.Errorf("%d batches failed", res.Errors)
	}
	return nil
}

// traced wraps every submit in a client span so the server's spans join the
// worker's trace.
func traced(tracer trace.Tracer, next worker.Submitter) worker.Submitter {
	return worker.SubmitterFunc(func(ctx context.Context, batch metrics.SampleBatch) error {
		ctx, span := tracer.Start(ctx, "submit batch",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.Int64("benchhub.write_count", batch.WriteCount),
				attribute.Int64("benchhub.read_count", batch.ReadCount),
			),
		)
		err := next.Submit(ctx, batch)
		tracing.EndSpan(span, err)
		return err
	})
}

func printSummary(w io.Writer, id registry.ClientID, res worker.Result, retries int64, calls rpc.CallStats) {
	rate := 0.0
	if secs := res.Duration.Seconds(); secs > 0 {
		rate = float64(res.Sent) / secs
	}
	fmt.Fprintf(w, "Client:     %s\n", id)
	fmt.Fprintf(w, "Duration:   %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Batches:    %d sent, %d failed (%.1f/s)\n", res.Sent, res.Errors, rate)
	fmt.Fprintf(w, "Records:    %d\n", res.Records)
	fmt.Fprintf(w, "Retries:    %d\n", retries)
	fmt.Fprintf(w, "RPC calls:  %d (%d errors, last status %s)\n", calls.Calls, calls.Errors, calls.LastStatus)
	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		fmt.Fprintf(w, "Stopped:    %v\n", res.Err)
	}
}
