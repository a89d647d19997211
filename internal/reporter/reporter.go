// Package reporter defines the capabilities the aggregation engine and the
// transport layer report through, plus a fan-out that combines adapters.
package reporter

import (
	"time"

	"github.com/torosent/benchhub/internal/metrics"
)

// Reporter receives flushed windows and the final totals.
type Reporter interface {
	// ReportWindow is called once per flush with the window just closed.
	ReportWindow(stats metrics.Stats)
	// ReportTotals is called exactly once, when the engine stops.
	ReportTotals(stats metrics.Stats)
}

// LatencyReporter accepts single latencies that bypass the ingestion queue.
type LatencyReporter interface {
	ReportLatency(d time.Duration)
}

// ReaderWriterSetter receives configured and active reader/writer counts so
// adapters can normalise throughput per worker.
type ReaderWriterSetter interface {
	SetMaxReaders(n int)
	SetMaxWriters(n int)
	SetReaders(n int)
	SetWriters(n int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ReportWindow(metrics.Stats)  {}
func (Nop) ReportTotals(metrics.Stats)  {}
func (Nop) ReportLatency(time.Duration) {}
func (Nop) SetMaxReaders(int)           {}
func (Nop) SetMaxWriters(int)           {}
func (Nop) SetReaders(int)              {}
func (Nop) SetWriters(int)              {}

// Multi fans every call out to the children that implement the matching
// capability. Children are called in order.
type Multi struct {
	reporters []Reporter
	latency   []LatencyReporter
	rw        []ReaderWriterSetter
}

var (
	_ Reporter           = (*Multi)(nil)
	_ LatencyReporter    = (*Multi)(nil)
	_ ReaderWriterSetter = (*Multi)(nil)
)

// NewMulti builds a fan-out over children. Children may implement any subset
// of Reporter, LatencyReporter and ReaderWriterSetter; nil entries are skipped.
func NewMulti(children ...any) *Multi {
	m := &Multi{}
	for _, c := range children {
		if c == nil {
			continue
		}
		if r, ok := c.(Reporter); ok {
			m.reporters = append(m.reporters, r)
		}
		if l, ok := c.(LatencyReporter); ok {
			m.latency = append(m.latency, l)
		}
		if s, ok := c.(ReaderWriterSetter); ok {
			m.rw = append(m.rw, s)
		}
	}
	return m
}

func (m *Multi) ReportWindow(stats metrics.Stats) {
	for _, r := range m.reporters {
		r.ReportWindow(stats)
	}
}

func (m *Multi) ReportTotals(stats metrics.Stats) {
	for _, r := range m.reporters {
		r.ReportTotals(stats)
	}
}

func (m *Multi) ReportLatency(d time.Duration) {
	for _, l := range m.latency {
		l.ReportLatency(d)
	}
}

func (m *Multi) SetMaxReaders(n int) {
	for _, s := range m.rw {
		s.SetMaxReaders(n)
	}
}

func (m *Multi) SetMaxWriters(n int) {
	for _, s := range m.rw {
		s.SetMaxWriters(n)
	}
}

func (m *Multi) SetReaders(n int) {
	for _, s := range m.rw {
		s.SetReaders(n)
	}
}

func (m *Multi) SetWriters(n int) {
	for _, s := range m.rw {
		s.SetWriters(n)
	}
}
