// Package metricsserver serves the latest aggregated window to pull-based
// scrapers over HTTP.
//
// Scrapers are admitted through their own admission counter, separate from
// the one the ingestion service uses.
package metricsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/torosent/benchhub/internal/admission"
	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/reporter"
)

const readHeaderTimeout = 10 * time.Second

// Config controls the listener and the scraper ceiling.
type Config struct {
	Addr           string
	MaxConnections int64
	ZeroPolicy     admission.ZeroPolicy
}

// Snapshotter exposes the reporter's remembered values.
type Snapshotter interface {
	Last() (metrics.Stats, bool)
	Totals() (metrics.Stats, bool)
}

// Gauges are sampled on every scrape. Nil functions are skipped.
type Gauges struct {
	Connections  func() int64
	Clients      func() int
	QueueDepth   func() int
	PendingBytes func() int64
	// Gates are admission counters whose underflows are exported next to
	// the scraper gate's own, labeled by counter name.
	Gates []*admission.Counter
}

// Server is the HTTP metrics endpoint.
type Server struct {
	cfg      Config
	gate     *admission.Counter
	latency  reporter.LatencyReporter
	snapshot Snapshotter
	log      *zap.Logger
	handler  http.Handler
	srv      *http.Server
}

// New wires the router and registers process gauges with registry. latency
// receives the handling time of every admitted request; it may be nil.
func New(cfg Config, registry *prometheus.Registry, snapshot Snapshotter, latency reporter.LatencyReporter, gauges Gauges, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if latency == nil {
		latency = reporter.Nop{}
	}
	s := &Server{
		cfg:      cfg,
		gate:     admission.New("metrics", cfg.MaxConnections, cfg.ZeroPolicy),
		latency:  latency,
		snapshot: snapshot,
		log:      logger.Named("metricsserver"),
	}

	if err := s.register(registry, gauges); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = rw.Write([]byte("ok\n"))
	})
	r.Group(func(r chi.Router) {
		r.Use(s.admit)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		r.Get("/snapshot", s.serveSnapshot)
	})
	s.handler = r
	s.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

func (s *Server) register(registry *prometheus.Registry, gauges Gauges) error {
	gaugeFunc := func(name, help string, f func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "benchhub",
			Name:      name,
			Help:      help,
		}, f)
	}

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		gaugeFunc("scrape_connections", "Metrics requests currently being served.", func() float64 {
			return float64(s.gate.Count())
		}),
	}
	if gauges.Connections != nil {
		cs = append(cs, gaugeFunc("ingestion_connections", "Registered ingestion connections.", func() float64 {
			return float64(gauges.Connections())
		}))
	}
	if gauges.Clients != nil {
		cs = append(cs, gaugeFunc("clients", "Registered clients.", func() float64 {
			return float64(gauges.Clients())
		}))
	}
	if gauges.QueueDepth != nil {
		cs = append(cs, gaugeFunc("queue_depth", "Sample batches waiting to be merged.", func() float64 {
			return float64(gauges.QueueDepth())
		}))
	}
	if gauges.PendingBytes != nil {
		cs = append(cs, gaugeFunc("queue_bytes", "Payload bytes waiting to be merged.", func() float64 {
			return float64(gauges.PendingBytes())
		}))
	}
	for _, g := range append([]*admission.Counter{s.gate}, gauges.Gates...) {
		g := g
		cs = append(cs, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "benchhub",
			Name:        "admission_underflows_total",
			Help:        "Releases that found an admission counter already at zero.",
			ConstLabels: prometheus.Labels{"gate": g.Name()},
		}, func() float64 {
			return float64(g.Underflows())
		}))
	}
	for _, c := range cs {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// admit gates a request on the scraper ceiling and reports its latency.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if _, err := s.gate.Increment(); err != nil {
			s.log.Debug("rejected metrics request", zap.String("remote", r.RemoteAddr), zap.Error(err))
			rw.Header().Set("Retry-After", "1")
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer s.gate.Decrement()

		start := time.Now()
		next.ServeHTTP(rw, r)
		s.latency.ReportLatency(time.Since(start))
	})
}

// Snapshot is the body of GET /snapshot.
type Snapshot struct {
	Window *metrics.Stats `json:"window"`
	Totals *metrics.Stats `json:"totals,omitempty"`
}

func (s *Server) serveSnapshot(rw http.ResponseWriter, _ *http.Request) {
	var body Snapshot
	if s.snapshot != nil {
		if last, ok := s.snapshot.Last(); ok {
			body.Window = &last
		}
		if totals, ok := s.snapshot.Totals(); ok {
			body.Totals = &totals
		}
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		s.log.Warn("write snapshot", zap.Error(err))
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Gate returns the scraper admission counter.
func (s *Server) Gate() *admission.Counter { return s.gate }

// ListenAndServe listens on cfg.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting scrapes and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
