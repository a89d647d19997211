package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/torosent/benchhub/internal/admission"
	"github.com/torosent/benchhub/internal/config"
	"github.com/torosent/benchhub/internal/engine"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/metricsserver"
	"github.com/torosent/benchhub/internal/output"
	"github.com/torosent/benchhub/internal/promexport"
	"github.com/torosent/benchhub/internal/registry"
	"github.com/torosent/benchhub/internal/reporter"
	"github.com/torosent/benchhub/internal/rpc"
	"github.com/torosent/benchhub/internal/service"
	"github.com/torosent/benchhub/internal/threshold"
	"github.com/torosent/benchhub/internal/tracing"
)

const (
	progressInterval = time.Second
	historyLimit     = 720
)

type server struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer

	tracing   *tracing.Provider
	engine    *engine.Engine
	svc       *service.Service
	rpc       *grpc.Server
	metrics   *metricsserver.Server
	history   *output.History
	json      *output.JSONReporter
	evaluator *threshold.Evaluator

	rpcLn     net.Listener
	metricsLn net.Listener
}

func newServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) (*server, error) {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("thresholds: %w", err)
	}
	policy, err := admission.ParseZeroPolicy(cfg.ZeroPolicy)
	if err != nil {
		return nil, err
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	s := &server{
		cfg:       cfg,
		log:       logger,
		out:       out,
		history:   output.NewHistory(historyLimit),
		evaluator: threshold.NewEvaluator(thresholds),
	}

	promRegistry := prometheus.NewRegistry()
	prom, err := promexport.New(promRegistry, engineCfg.Window.Unit)
	if err != nil {
		return nil, err
	}

	var console reporter.Reporter
	if cfg.JSONOutput {
		s.json = output.NewJSONReporter(out)
		console = s.json
	} else {
		console = output.NewTextReporter(out)
	}
	rep := reporter.NewMulti(console, prom, s.history)

	s.engine, err = engine.New(engineCfg, rep, logger)
	if err != nil {
		return nil, err
	}

	gate := admission.New("ingestion", cfg.MaxConnections, policy)
	s.svc = service.New(gate, registry.New(), s.engine, rep, snapshotOf(engineCfg, cfg, policy), logger)

	s.tracing, err = tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	s.rpc = rpc.NewGRPCServer(s.svc, s.tracing.Tracer(), logger)

	if cfg.MetricsAddr != "" {
		s.metrics, err = metricsserver.New(metricsserver.Config{
			Addr:           cfg.MetricsAddr,
			MaxConnections: cfg.MaxScrapers,
			ZeroPolicy:     policy,
		}, promRegistry, prom, prom, metricsserver.Gauges{
			Connections:  s.svc.Connections,
			Clients:      s.svc.Clients,
			QueueDepth:   s.engine.Depth,
			PendingBytes: s.engine.PendingBytes,
			Gates:        []*admission.Counter{gate},
		}, logger)
		if err != nil {
			s.close()
			return nil, err
		}
	}

	if s.rpcLn, err = net.Listen("tcp", cfg.ListenAddr); err != nil {
		s.close()
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	if s.metrics != nil {
		if s.metricsLn, err = net.Listen("tcp", cfg.MetricsAddr); err != nil {
			s.close()
			return nil, fmt.Errorf("listen %s: %w", cfg.MetricsAddr, err)
		}
	}
	return s, nil
}

func snapshotOf(ec engine.Config, cfg *config.Config, policy admission.ZeroPolicy) service.ConfigSnapshot {
	return service.ConfigSnapshot{
		MaxConnections:     cfg.MaxConnections,
		ZeroPolicy:         string(policy),
		QueueEntries:       ec.QueueEntries,
		QueueBytes:         ec.QueueBytes,
		FlushInterval:      ec.FlushInterval,
		IdleInterval:       ec.IdleInterval,
		EnqueueTimeout:     ec.EnqueueTimeout,
		LatencyUnit:        string(ec.Window.Unit),
		MinLatency:         ec.Window.MinLatency,
		MaxLatency:         ec.Window.MaxLatency,
		SignificantFigures: ec.Window.SignificantFigures,
		Percentiles:        ec.Window.Percentiles,
	}
}

// rpcAddr and metricsAddr report the bound addresses, useful with port 0.
func (s *server) rpcAddr() net.Addr { return s.rpcLn.Addr() }

func (s *server) metricsAddr() net.Addr {
	if s.metricsLn == nil {
		return nil
	}
	return s.metricsLn.Addr()
}

func (s *server) progress(w io.Writer) *output.ProgressReporter {
	return output.NewProgressReporter(func() output.Status {
		readers, _, writers, _ := s.svc.Workers()
		return output.Status{
			Connections:  s.svc.Connections(),
			Clients:      s.svc.Clients(),
			Readers:      readers,
			Writers:      writers,
			QueueDepth:   s.engine.Depth(),
			PendingBytes: s.engine.PendingBytes(),
			Flushes:      s.engine.Flushes(),
		}
	}, progressInterval, w)
}

// run serves RPC and metrics traffic until ctx ends or a listener fails,
// then shuts everything down in order: stop taking RPCs, drain the engine,
// stop the metrics endpoint.
func (s *server) run(ctx context.Context) error {
	s.engine.Start(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("serving workers", zap.String("addr", s.rpcLn.Addr().String()))
		if err := s.rpc.Serve(s.rpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	})
	if s.metrics != nil {
		g.Go(func() error {
			if err := s.metrics.Serve(s.metricsLn); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

func (s *server) shutdown() error {
	ctx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	s.log.Info("shutting down", zap.Int("queued", s.engine.Depth()))

	stopped := make(chan struct{})
	go func() {
		s.rpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.rpc.Stop()
		<-stopped
	}

	var errs []error
	if err := s.engine.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain queue: %w", err))
	}
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// finish evaluates thresholds against the totals and writes the HTML report.
func (s *server) finish() error {
	if s.json != nil {
		if err := s.json.Err(); err != nil {
			return fmt.Errorf("json output: %w", err)
		}
	}
	totals, ok := s.history.Totals()
	if !ok {
		return errors.New("aggregation engine did not report totals")
	}

	results := s.evaluator.Evaluate(totals)
	if len(results) > 0 && !s.cfg.JSONOutput {
		output.PrintThresholdResults(s.out, results)
	}

	if s.cfg.HTMLOutput != "" {
		if err := s.writeHTML(totals, results); err != nil {
			return err
		}
	}

	if failed := threshold.Failed(results); failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	return nil
}

func (s *server) writeHTML(totals metrics.Stats, results []threshold.Result) error {
	f, err := os.Create(s.cfg.HTMLOutput)
	if err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	readers, maxReaders, writers, maxWriters := s.svc.Workers()
	workers := output.Workers{Readers: readers, MaxReaders: maxReaders, Writers: writers, MaxWriters: maxWriters}
	meta := output.ReportMetadata{ListenAddr: s.rpcLn.Addr().String(), FlushInterval: s.cfg.FlushInterval}
	if err := output.GenerateHTMLReport(f, totals, s.history.Windows(), workers, results, meta); err != nil {
		f.Close()
		return fmt.Errorf("html report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	s.log.Info("wrote html report", zap.String("path", s.cfg.HTMLOutput))
	return nil
}

// close releases listeners that were never served and flushes spans.
func (s *server) close() {
	if s.rpcLn != nil {
		_ = s.rpcLn.Close()
	}
	if s.metricsLn != nil {
		_ = s.metricsLn.Close()
	}
	if s.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracing.Shutdown(ctx); err != nil {
			s.log.Warn("trace exporter shutdown", zap.Error(err))
		}
	}
}
