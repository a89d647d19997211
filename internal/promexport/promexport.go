// Package promexport exposes flushed windows and totals as Prometheus gauges.
//
// Values are passed through unchanged: latencies stay in the server's
// configured unit and appear as a "unit" constant label.
package promexport

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/reporter"
)

const (
	namespace = "benchhub"

	scopeWindow = "window"
	scopeTotals = "totals"
)

var directions = []string{"write", "read"}

// Reporter is a reporter.Reporter backed by Prometheus collectors. It also
// remembers the last window and the totals for the metrics server.
type Reporter struct {
	reporter.Counts

	records       *prometheus.GaugeVec
	bytes         *prometheus.GaugeVec
	samples       *prometheus.GaugeVec
	recordsPerSec *prometheus.GaugeVec
	mbPerSec      *prometheus.GaugeVec
	latency       *prometheus.GaugeVec
	percentiles   *prometheus.GaugeVec
	discards      *prometheus.GaugeVec
	counters      *prometheus.GaugeVec
	duration      *prometheus.GaugeVec
	windows       prometheus.Counter
	scrape        prometheus.Histogram

	last   atomic.Pointer[metrics.Stats]
	totals atomic.Pointer[metrics.Stats]
}

var (
	_ reporter.Reporter           = (*Reporter)(nil)
	_ reporter.LatencyReporter    = (*Reporter)(nil)
	_ reporter.ReaderWriterSetter = (*Reporter)(nil)
)

// New builds the collectors and registers them with registerer.
func New(registerer prometheus.Registerer, unit metrics.LatencyUnit) (*Reporter, error) {
	unitLabel := prometheus.Labels{"unit": string(unit)}
	gaugeVec := func(name, help string, constLabels prometheus.Labels, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, append([]string{"scope"}, labels...))
	}

	r := &Reporter{
		records:       gaugeVec("records", "Records reported by workers.", nil, "direction"),
		bytes:         gaugeVec("bytes", "Bytes reported by workers.", nil, "direction"),
		samples:       gaugeVec("latency_samples", "Latency samples recorded into the histogram.", nil, "direction"),
		recordsPerSec: gaugeVec("records_per_second", "Records per second.", nil, "direction"),
		mbPerSec:      gaugeVec("megabytes_per_second", "Megabytes (2^20 bytes) per second.", nil, "direction"),
		latency:       gaugeVec("latency", "Minimum, maximum and average latency.", unitLabel, "direction", "stat"),
		percentiles:   gaugeVec("latency_percentile", "Latency at the configured percentiles.", unitLabel, "direction", "percentile"),
		discards:      gaugeVec("latency_discards", "Latency samples outside the histogram bounds.", nil, "direction", "bound"),
		counters:      gaugeVec("batch_events", "Batch level counters.", nil, "event"),
		duration:      gaugeVec("duration_seconds", "Length of the reported interval.", nil),
		windows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_flushed_total",
			Help:      "Windows flushed by the aggregation engine.",
		}),
		scrape: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Time spent serving metrics requests.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.010, 0.025, 0.050, 0.100, 0.500, 1},
		}),
	}

	workerGauge := func(name, help string, load func() int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) })
	}

	collectors := []prometheus.Collector{
		r.records, r.bytes, r.samples, r.recordsPerSec, r.mbPerSec,
		r.latency, r.percentiles, r.discards, r.counters, r.duration,
		r.windows, r.scrape,
		workerGauge("readers", "Readers currently active.", func() int64 { readers, _, _, _ := r.Snapshot(); return readers }),
		workerGauge("readers_max", "Highest number of readers seen.", func() int64 { _, maxReaders, _, _ := r.Snapshot(); return maxReaders }),
		workerGauge("writers", "Writers currently active.", func() int64 { _, _, writers, _ := r.Snapshot(); return writers }),
		workerGauge("writers_max", "Highest number of writers seen.", func() int64 { _, _, _, maxWriters := r.Snapshot(); return maxWriters }),
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reporter) ReportWindow(stats metrics.Stats) {
	r.set(scopeWindow, stats)
	r.windows.Inc()
	r.last.Store(&stats)
}

func (r *Reporter) ReportTotals(stats metrics.Stats) {
	r.set(scopeTotals, stats)
	r.totals.Store(&stats)
}

// ReportLatency observes how long a metrics request took. These latencies
// only feed benchhub_scrape_duration_seconds; they never reach the
// benchhub_latency* families, which carry worker samples alone.
func (r *Reporter) ReportLatency(d time.Duration) {
	r.scrape.Observe(d.Seconds())
}

// Last returns the most recently flushed window.
func (r *Reporter) Last() (metrics.Stats, bool) {
	s := r.last.Load()
	if s == nil {
		return metrics.Stats{}, false
	}
	return *s, true
}

// Totals returns the cumulative totals once the engine has stopped.
func (r *Reporter) Totals() (metrics.Stats, bool) {
	s := r.totals.Load()
	if s == nil {
		return metrics.Stats{}, false
	}
	return *s, true
}

func (r *Reporter) set(scope string, stats metrics.Stats) {
	// Percentile label sets can change between configurations; drop stale ones.
	r.percentiles.DeletePartialMatch(prometheus.Labels{"scope": scope})

	for i, d := range []metrics.DirectionStats{stats.Write, stats.Read} {
		dir := directions[i]
		r.records.WithLabelValues(scope, dir).Set(float64(d.Records))
		r.bytes.WithLabelValues(scope, dir).Set(float64(d.Bytes))
		r.samples.WithLabelValues(scope, dir).Set(float64(d.Samples))
		r.recordsPerSec.WithLabelValues(scope, dir).Set(d.RecordsPerSec)
		r.mbPerSec.WithLabelValues(scope, dir).Set(d.MBPerSec)
		r.latency.WithLabelValues(scope, dir, "min").Set(float64(d.MinLatency))
		r.latency.WithLabelValues(scope, dir, "max").Set(float64(d.MaxLatency))
		r.latency.WithLabelValues(scope, dir, "avg").Set(d.AvgLatency)
		r.discards.WithLabelValues(scope, dir, "low").Set(float64(d.LowDiscards))
		r.discards.WithLabelValues(scope, dir, "high").Set(float64(d.HighDiscards))
		for _, p := range d.Percentiles {
			r.percentiles.WithLabelValues(scope, dir, strconv.FormatFloat(p.Percentile, 'f', -1, 64)).Set(float64(p.Value))
		}
	}

	r.counters.WithLabelValues(scope, "batches").Set(float64(stats.Batches))
	r.counters.WithLabelValues(scope, "rejected").Set(float64(stats.Rejected))
	r.counters.WithLabelValues(scope, "discarded").Set(float64(stats.Discarded))
	r.counters.WithLabelValues(scope, "malformed").Set(float64(stats.Malformed))
	r.counters.WithLabelValues(scope, "overflowed").Set(float64(stats.Overflowed))
	r.duration.WithLabelValues(scope).Set(stats.Duration.Seconds())
}
