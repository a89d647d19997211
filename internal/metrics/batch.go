package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/torosent/benchhub/internal/errdefs"
)

// LatencyUnit is the unit workers use for latency samples.
type LatencyUnit string

const (
	UnitNanoseconds  LatencyUnit = "ns"
	UnitMicroseconds LatencyUnit = "us"
	UnitMilliseconds LatencyUnit = "ms"
)

// ParseLatencyUnit parses a unit name. The empty string selects milliseconds.
func ParseLatencyUnit(s string) (LatencyUnit, error) {
	switch LatencyUnit(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnitMilliseconds:
		return UnitMilliseconds, nil
	case UnitMicroseconds, "µs":
		return UnitMicroseconds, nil
	case UnitNanoseconds:
		return UnitNanoseconds, nil
	default:
		return "", fmt.Errorf("latency unit must be ns, us or ms, got %q", s)
	}
}

// Duration returns the length of one unit.
func (u LatencyUnit) Duration() time.Duration {
	switch u {
	case UnitNanoseconds:
		return time.Nanosecond
	case UnitMicroseconds:
		return time.Microsecond
	default:
		return time.Millisecond
	}
}

// ToDuration converts a latency value expressed in u.
func (u LatencyUnit) ToDuration(v int64) time.Duration {
	return time.Duration(v) * u.Duration()
}

// FromDuration converts d to u, truncating.
func (u LatencyUnit) FromDuration(d time.Duration) int64 {
	return int64(d / u.Duration())
}

// batchOverheadBytes approximates the fixed in-memory size of a SampleBatch
// when accounting queued payload.
const batchOverheadBytes = 128

// SampleBatch is one unit of samples submitted by a worker. Latencies are in
// the server's configured LatencyUnit. A zero MinLatency and MaxLatency means
// the worker did not report observed extremes.
type SampleBatch struct {
	WriteCount     int64   `json:"write_count"`
	WriteBytes     int64   `json:"write_bytes"`
	WriteLatencies []int64 `json:"write_latencies,omitempty"`
	ReadCount      int64   `json:"read_count"`
	ReadBytes      int64   `json:"read_bytes"`
	ReadLatencies  []int64 `json:"read_latencies,omitempty"`
	MinLatency     int64   `json:"min_latency"`
	MaxLatency     int64   `json:"max_latency"`
	DiscardCount   int64   `json:"discard_count"`
}

// Validate rejects batches whose counters cannot be merged. Individual
// latency samples are not checked here; bad samples are discarded during the
// merge without rejecting the rest of the batch.
func (b SampleBatch) Validate() error {
	var issues []string
	if b.WriteCount < 0 {
		issues = append(issues, "write_count must be >= 0")
	}
	if b.WriteBytes < 0 {
		issues = append(issues, "write_bytes must be >= 0")
	}
	if b.ReadCount < 0 {
		issues = append(issues, "read_count must be >= 0")
	}
	if b.ReadBytes < 0 {
		issues = append(issues, "read_bytes must be >= 0")
	}
	if b.DiscardCount < 0 {
		issues = append(issues, "discard_count must be >= 0")
	}
	if b.MinLatency < 0 || b.MaxLatency < 0 {
		issues = append(issues, "observed latencies must be >= 0")
	} else if b.reportsExtremes() && b.MaxLatency < b.MinLatency {
		issues = append(issues, "max_latency must be >= min_latency")
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", errdefs.ErrMalformed, strings.Join(issues, "; "))
	}
	return nil
}

// PayloadSize estimates the bytes a queued batch holds.
func (b SampleBatch) PayloadSize() int64 {
	return batchOverheadBytes + 8*int64(len(b.WriteLatencies)+len(b.ReadLatencies))
}

func (b SampleBatch) reportsExtremes() bool {
	return b.MinLatency > 0 || b.MaxLatency > 0
}
