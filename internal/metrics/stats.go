package metrics

import (
	"time"
)

const bytesPerMB = 1024.0 * 1024.0

// PercentileValue is one configured percentile of a latency distribution.
type PercentileValue struct {
	Percentile float64 `json:"percentile"`
	Value      int64   `json:"value"`
}

// DirectionStats summarises one direction (write or read) of a window.
type DirectionStats struct {
	Records       int64             `json:"records"`
	Bytes         int64             `json:"bytes"`
	Samples       int64             `json:"samples"`
	MinLatency    int64             `json:"min_latency"`
	MaxLatency    int64             `json:"max_latency"`
	AvgLatency    float64           `json:"avg_latency"`
	Percentiles   []PercentileValue `json:"percentiles,omitempty"`
	RecordsPerSec float64           `json:"records_per_sec"`
	MBPerSec      float64           `json:"mb_per_sec"`
	LowDiscards   int64             `json:"low_discards"`
	HighDiscards  int64             `json:"high_discards"`
}

// Percentile returns the value recorded for p, if p was configured.
func (d DirectionStats) Percentile(p float64) (int64, bool) {
	for _, pv := range d.Percentiles {
		if pv.Percentile == p {
			return pv.Value, true
		}
	}
	return 0, false
}

// Stats is an immutable snapshot of a flushed window or of the cumulative
// totals. Latencies are in Unit.
type Stats struct {
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Unit       LatencyUnit   `json:"unit"`

	Batches int64          `json:"batches"`
	Write   DirectionStats `json:"write"`
	Read    DirectionStats `json:"read"`

	MinLatency int64 `json:"min_latency"`
	MaxLatency int64 `json:"max_latency"`

	Discarded  int64 `json:"discarded"`
	Malformed  int64 `json:"malformed"`
	Overflowed int64 `json:"overflowed"`
	Rejected   int64 `json:"rejected"`
}

// Records returns write plus read records.
func (s Stats) Records() int64 { return s.Write.Records + s.Read.Records }

// Bytes returns write plus read bytes.
func (s Stats) Bytes() int64 { return s.Write.Bytes + s.Read.Bytes }

// Stats computes the snapshot of w closed at end. Computing it does not
// modify w.
func (w *Window) Stats(end time.Time) Stats {
	elapsed := end.Sub(w.start)
	if elapsed < 0 {
		elapsed = 0
	}
	s := Stats{
		Start:      w.start,
		End:        end,
		Duration:   elapsed,
		DurationMs: float64(elapsed) / float64(time.Millisecond),
		Unit:       w.cfg.Unit,
		Batches:    w.batches,
		Write:      w.write.stats(elapsed, w.cfg.percentiles()),
		Read:       w.read.stats(elapsed, w.cfg.percentiles()),
		Discarded:  w.discarded,
		Malformed:  w.malformed,
		Overflowed: w.overflowed,
		Rejected:   w.rejected,
	}
	if w.minLatency >= 0 {
		s.MinLatency = w.minLatency
		s.MaxLatency = w.maxLatency
	}
	return s
}

func (r *recorder) stats(elapsed time.Duration, percentiles []float64) DirectionStats {
	d := DirectionStats{
		Records:      r.records,
		Bytes:        r.bytes,
		Samples:      r.samples,
		MaxLatency:   r.maxLatency,
		LowDiscards:  r.lowDiscards,
		HighDiscards: r.highDiscards,
	}
	if r.minLatency >= 0 {
		d.MinLatency = r.minLatency
	}
	if r.samples > 0 {
		d.AvgLatency = float64(r.latencySum) / float64(r.samples)
	}
	if r.hist.TotalCount() > 0 {
		d.Percentiles = make([]PercentileValue, len(percentiles))
		for i, p := range percentiles {
			d.Percentiles[i] = PercentileValue{Percentile: p, Value: r.hist.ValueAtQuantile(p)}
		}
	}
	if secs := elapsed.Seconds(); secs > 0 {
		d.RecordsPerSec = float64(r.records) / secs
		d.MBPerSec = float64(r.bytes) / bytesPerMB / secs
	}
	return d
}
