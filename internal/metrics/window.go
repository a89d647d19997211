package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// DefaultPercentiles are reported when none are configured.
var DefaultPercentiles = []float64{10, 25, 50, 75, 95, 99, 99.9, 99.99}

// WindowConfig fixes the histogram bounds of every Window built from it.
// Latencies below MinLatency or above MaxLatency are counted as discards
// rather than recorded. Buckets are HdrHistogram's log-linear buckets with
// SignificantFigures decimal digits of precision.
type WindowConfig struct {
	Unit               LatencyUnit
	MinLatency         int64
	MaxLatency         int64
	SignificantFigures int
	Percentiles        []float64
}

// Validate checks that a histogram can be built from c.
func (c WindowConfig) Validate() error {
	if c.MinLatency < 0 {
		return fmt.Errorf("min latency must be >= 0, got %d", c.MinLatency)
	}
	lowest := c.MinLatency
	if lowest < 1 {
		lowest = 1
	}
	if c.MaxLatency < 2*lowest {
		return fmt.Errorf("max latency %d must be at least twice the min latency %d", c.MaxLatency, lowest)
	}
	if c.SignificantFigures < 1 || c.SignificantFigures > 5 {
		return fmt.Errorf("significant figures must be between 1 and 5, got %d", c.SignificantFigures)
	}
	for _, p := range c.Percentiles {
		if p <= 0 || p > 100 {
			return fmt.Errorf("percentile %g out of range (0, 100]", p)
		}
	}
	return nil
}

func (c WindowConfig) percentiles() []float64 {
	if len(c.Percentiles) == 0 {
		return DefaultPercentiles
	}
	return c.Percentiles
}

// recorder accumulates one direction (write or read).
type recorder struct {
	records      int64
	bytes        int64
	samples      int64
	latencySum   int64
	minLatency   int64
	maxLatency   int64
	lowDiscards  int64
	highDiscards int64
	hist         *hdrhistogram.Histogram
}

func newRecorder(cfg WindowConfig) *recorder {
	lowest := cfg.MinLatency
	if lowest < 1 {
		lowest = 1
	}
	return &recorder{
		minLatency: -1,
		hist:       hdrhistogram.New(lowest, cfg.MaxLatency, cfg.SignificantFigures),
	}
}

func (r *recorder) reset() {
	r.records, r.bytes, r.samples, r.latencySum = 0, 0, 0, 0
	r.minLatency, r.maxLatency = -1, 0
	r.lowDiscards, r.highDiscards = 0, 0
	r.hist.Reset()
}

func (r *recorder) observeExtreme(v int64) {
	if r.minLatency < 0 || v < r.minLatency {
		r.minLatency = v
	}
	if v > r.maxLatency {
		r.maxLatency = v
	}
}

// Window accumulates merged batches between two flushes. It is not safe for
// concurrent use; the engine's consumer goroutine owns it exclusively.
type Window struct {
	cfg   WindowConfig
	start time.Time

	write *recorder
	read  *recorder

	minLatency int64 // -1 until something is observed
	maxLatency int64

	batches    int64
	discarded  int64
	malformed  int64
	overflowed int64
	rejected   int64
}

// NewWindow allocates a window and its fixed-size histograms. It fails only
// when cfg cannot describe a histogram.
func NewWindow(cfg WindowConfig, start time.Time) (*Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("window config: %w", err)
	}
	return &Window{
		cfg:        cfg,
		start:      start,
		write:      newRecorder(cfg),
		read:       newRecorder(cfg),
		minLatency: -1,
	}, nil
}

// Start returns the time the window was opened.
func (w *Window) Start() time.Time { return w.start }

// Reset empties the window and reopens it at start.
func (w *Window) Reset(start time.Time) {
	w.start = start
	w.write.reset()
	w.read.reset()
	w.minLatency, w.maxLatency = -1, 0
	w.batches, w.discarded, w.malformed, w.overflowed, w.rejected = 0, 0, 0, 0, 0
}

// Active reports whether anything was merged or counted since the last reset.
func (w *Window) Active() bool {
	return w.batches > 0 || w.rejected > 0
}

// Merge folds b into the window and returns how many contributions were
// dropped because they would overflow an int64 total. Negative samples are
// counted as malformed; out-of-range samples as low/high discards. Neither
// stops the rest of the batch from being merged.
func (w *Window) Merge(b SampleBatch) int {
	before := w.overflowed
	w.batches++
	w.addCounter(&w.discarded, b.DiscardCount)

	w.mergeDirection(w.write, b.WriteCount, b.WriteBytes, b.WriteLatencies)
	w.mergeDirection(w.read, b.ReadCount, b.ReadBytes, b.ReadLatencies)

	if b.reportsExtremes() && b.MinLatency >= 0 && b.MaxLatency >= b.MinLatency {
		w.observeExtreme(b.MinLatency)
		w.observeExtreme(b.MaxLatency)
	}
	return int(w.overflowed - before)
}

// AddRejected counts batches refused before they reached the queue.
func (w *Window) AddRejected(n int64) {
	w.addCounter(&w.rejected, n)
}

func (w *Window) mergeDirection(r *recorder, records, bytes int64, latencies []int64) {
	w.addCounter(&r.records, records)
	w.addCounter(&r.bytes, bytes)

	for _, v := range latencies {
		if v < 0 {
			w.malformed++
			continue
		}
		r.observeExtreme(v)
		w.observeExtreme(v)
		switch {
		case v < w.cfg.MinLatency:
			r.lowDiscards++
			continue
		case v > w.cfg.MaxLatency:
			r.highDiscards++
			continue
		}
		if !addInt64(&r.latencySum, v) {
			w.overflowed++
			continue
		}
		if err := r.hist.RecordValue(v); err != nil {
			r.latencySum -= v
			r.highDiscards++
			continue
		}
		r.samples++
	}
}

// Absorb adds every total of other into w. Both windows must come from the
// same WindowConfig.
func (w *Window) Absorb(other *Window) int {
	before := w.overflowed
	absorbRecorder := func(dst, src *recorder) {
		w.addCounter(&dst.records, src.records)
		w.addCounter(&dst.bytes, src.bytes)
		w.addCounter(&dst.samples, src.samples)
		w.addCounter(&dst.latencySum, src.latencySum)
		w.addCounter(&dst.lowDiscards, src.lowDiscards)
		w.addCounter(&dst.highDiscards, src.highDiscards)
		if src.minLatency >= 0 {
			dst.observeExtreme(src.minLatency)
			dst.observeExtreme(src.maxLatency)
		}
		if dropped := dst.hist.Merge(src.hist); dropped > 0 {
			dst.highDiscards += dropped
		}
	}
	absorbRecorder(w.write, other.write)
	absorbRecorder(w.read, other.read)

	if other.minLatency >= 0 {
		w.observeExtreme(other.minLatency)
		w.observeExtreme(other.maxLatency)
	}
	w.addCounter(&w.batches, other.batches)
	w.addCounter(&w.discarded, other.discarded)
	w.addCounter(&w.malformed, other.malformed)
	w.addCounter(&w.rejected, other.rejected)

	dropped := w.overflowed - before
	w.addCounter(&w.overflowed, other.overflowed)
	return int(dropped)
}

func (w *Window) observeExtreme(v int64) {
	if w.minLatency < 0 || v < w.minLatency {
		w.minLatency = v
	}
	if v > w.maxLatency {
		w.maxLatency = v
	}
}

func (w *Window) addCounter(dst *int64, v int64) {
	if !addInt64(dst, v) {
		w.overflowed++
	}
}

// addInt64 adds v to *dst unless the result would overflow.
func addInt64(dst *int64, v int64) bool {
	if v > 0 && *dst > math.MaxInt64-v {
		return false
	}
	if v < 0 && *dst < math.MinInt64-v {
		return false
	}
	*dst += v
	return true
}
