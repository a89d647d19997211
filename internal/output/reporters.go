package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/reporter"
)

// TextReporter prints one line per flushed window and a full summary of the
// totals. Throughput is also shown per active worker.
type TextReporter struct {
	reporter.Counts

	mu     sync.Mutex
	writer io.Writer
}

var (
	_ reporter.Reporter           = (*TextReporter)(nil)
	_ reporter.ReaderWriterSetter = (*TextReporter)(nil)
)

// NewTextReporter writes to w (io.Discard when nil).
func NewTextReporter(w io.Writer) *TextReporter {
	if w == nil {
		w = io.Discard
	}
	return &TextReporter{writer: w}
}

func (t *TextReporter) ReportWindow(stats metrics.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	PrintWindow(t.writer, stats, t.workers())
}

func (t *TextReporter) ReportTotals(stats metrics.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	PrintReport(t.writer, stats, t.workers())
}

func (t *TextReporter) workers() Workers {
	readers, maxReaders, writers, maxWriters := t.Snapshot()
	return Workers{Readers: readers, MaxReaders: maxReaders, Writers: writers, MaxWriters: maxWriters}
}

// Record is one JSON line emitted by JSONReporter.
type Record struct {
	Type       string        `json:"type"` // "window" or "totals"
	Readers    int64         `json:"readers"`
	MaxReaders int64         `json:"max_readers"`
	Writers    int64         `json:"writers"`
	MaxWriters int64         `json:"max_writers"`
	Stats      metrics.Stats `json:"stats"`
}

// JSONReporter writes one JSON object per line for every window and for the
// totals, suitable for piping into other tools.
type JSONReporter struct {
	reporter.Counts

	mu  sync.Mutex
	enc *json.Encoder
	err error
}

var (
	_ reporter.Reporter           = (*JSONReporter)(nil)
	_ reporter.ReaderWriterSetter = (*JSONReporter)(nil)
)

// NewJSONReporter writes JSON lines to w (io.Discard when nil).
func NewJSONReporter(w io.Writer) *JSONReporter {
	if w == nil {
		w = io.Discard
	}
	return &JSONReporter{enc: json.NewEncoder(w)}
}

func (j *JSONReporter) ReportWindow(stats metrics.Stats) { j.write("window", stats) }
func (j *JSONReporter) ReportTotals(stats metrics.Stats) { j.write("totals", stats) }

// Err returns the first write error, if any.
func (j *JSONReporter) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *JSONReporter) write(kind string, stats metrics.Stats) {
	readers, maxReaders, writers, maxWriters := j.Snapshot()
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	j.err = j.enc.Encode(Record{
		Type:       kind,
		Readers:    readers,
		MaxReaders: maxReaders,
		Writers:    writers,
		MaxWriters: maxWriters,
		Stats:      stats,
	})
}

// History keeps the most recent windows and the totals so a report can be
// rendered after shutdown.
type History struct {
	mu      sync.Mutex
	limit   int
	windows []metrics.Stats
	totals  *metrics.Stats
}

var _ reporter.Reporter = (*History)(nil)

// NewHistory keeps at most limit windows (unbounded when limit <= 0).
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

func (h *History) ReportWindow(stats metrics.Stats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows = append(h.windows, stats)
	if h.limit > 0 && len(h.windows) > h.limit {
		h.windows = append(h.windows[:0], h.windows[len(h.windows)-h.limit:]...)
	}
}

func (h *History) ReportTotals(stats metrics.Stats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totals = &stats
}

// Windows returns a copy of the retained windows, oldest first.
func (h *History) Windows() []metrics.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]metrics.Stats(nil), h.windows...)
}

// Totals returns the reported totals, if the engine has stopped.
func (h *History) Totals() (metrics.Stats, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.totals == nil {
		return metrics.Stats{}, false
	}
	return *h.totals, true
}
