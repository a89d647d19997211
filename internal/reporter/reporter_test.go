package reporter_test

import (
	"testing"
	"time"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/reporter"
)

type windowOnly struct {
	windows, totals int
}

func (w *windowOnly) ReportWindow(metrics.Stats) { w.windows++ }
func (w *windowOnly) ReportTotals(metrics.Stats) { w.totals++ }

type latencyOnly struct {
	seen []time.Duration
}

func (l *latencyOnly) ReportLatency(d time.Duration) { l.seen = append(l.seen, d) }

type countsOnly struct {
	reporter.Counts
}

func TestMultiRoutesByCapability(t *testing.T) {
	w := &windowOnly{}
	l := &latencyOnly{}
	c := &countsOnly{}
	m := reporter.NewMulti(w, nil, l, c)

	m.ReportWindow(metrics.Stats{})
	m.ReportWindow(metrics.Stats{})
	m.ReportTotals(metrics.Stats{})
	m.ReportLatency(5 * time.Millisecond)
	m.SetReaders(2)
	m.SetMaxReaders(4)
	m.SetWriters(3)
	m.SetMaxWriters(6)

	if w.windows != 2 || w.totals != 1 {
		t.Errorf("expected 2 windows and 1 totals, got %d/%d", w.windows, w.totals)
	}
	if len(l.seen) != 1 || l.seen[0] != 5*time.Millisecond {
		t.Errorf("unexpected latencies %v", l.seen)
	}
	readers, maxReaders, writers, maxWriters := c.Snapshot()
	if readers != 2 || maxReaders != 4 || writers != 3 || maxWriters != 6 {
		t.Errorf("unexpected counts %d/%d %d/%d", readers, maxReaders, writers, maxWriters)
	}
}

func TestPerWorker(t *testing.T) {
	if got := reporter.PerWorker(100, 4); got != 25 {
		t.Errorf("PerWorker(100, 4) = %v", got)
	}
	if got := reporter.PerWorker(100, 0); got != 0 {
		t.Errorf("PerWorker(100, 0) = %v", got)
	}
}
