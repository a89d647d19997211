package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/reporter"
	"github.com/torosent/benchhub/internal/threshold"
)

// Workers carries the reader/writer counts used for per-worker figures.
type Workers struct {
	Readers    int64
	MaxReaders int64
	Writers    int64
	MaxWriters int64
}

// PrintWindow outputs a single-line summary of a flushed window.
func PrintWindow(w io.Writer, stats metrics.Stats, workers Workers) {
	fmt.Fprintf(w, "%s  Writers %d  Readers %d  %s  %s  Rejected %d\n",
		stats.End.Format("15:04:05"),
		workers.Writers,
		workers.Readers,
		directionLine("Write", stats.Write, stats.Unit, workers.Writers),
		directionLine("Read", stats.Read, stats.Unit, workers.Readers),
		stats.Rejected,
	)
}

func directionLine(label string, d metrics.DirectionStats, unit metrics.LatencyUnit, workers int64) string {
	line := fmt.Sprintf("%s %d records (%.1f rec/s, %.2f MB/s, avg %.2f %s, max %d %s)",
		label, d.Records, d.RecordsPerSec, d.MBPerSec, d.AvgLatency, unit, d.MaxLatency, unit)
	if workers > 1 {
		line += fmt.Sprintf(" [%.2f MB/s per worker]", reporter.PerWorker(d.MBPerSec, workers))
	}
	return line
}

// PrintReport outputs a human-readable summary of the cumulative totals.
func PrintReport(w io.Writer, stats metrics.Stats, workers Workers) {
	fmt.Fprintln(w, "\n--- Benchmark Totals ---")
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Batches:           %d\n", stats.Batches)
	fmt.Fprintf(w, "Writers:           %d (max %d)\n", workers.Writers, workers.MaxWriters)
	fmt.Fprintf(w, "Readers:           %d (max %d)\n", workers.Readers, workers.MaxReaders)
	fmt.Fprintf(w, "Rejected batches:  %d\n", stats.Rejected)
	fmt.Fprintf(w, "Worker discards:   %d\n", stats.Discarded)
	if stats.Malformed > 0 || stats.Overflowed > 0 {
		fmt.Fprintf(w, "Malformed samples: %d\n", stats.Malformed)
		fmt.Fprintf(w, "Overflow drops:    %d\n", stats.Overflowed)
	}
	if stats.Batches > 0 {
		fmt.Fprintf(w, "Latency range:     %d - %d %s\n", stats.MinLatency, stats.MaxLatency, stats.Unit)
	}

	printDirection(w, "Writes", stats.Write, stats.Unit, workers.MaxWriters)
	printDirection(w, "Reads", stats.Read, stats.Unit, workers.MaxReaders)
}

func printDirection(w io.Writer, label string, d metrics.DirectionStats, unit metrics.LatencyUnit, workers int64) {
	if d.Records == 0 && d.Samples == 0 && d.LowDiscards == 0 && d.HighDiscards == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", label)
	fmt.Fprintf(w, "  Records:         %d\n", d.Records)
	fmt.Fprintf(w, "  Bytes:           %d\n", d.Bytes)
	fmt.Fprintf(w, "  Records/sec:     %.2f\n", d.RecordsPerSec)
	fmt.Fprintf(w, "  MB/sec:          %.2f\n", d.MBPerSec)
	if workers > 1 {
		fmt.Fprintf(w, "  MB/sec/worker:   %.2f\n", reporter.PerWorker(d.MBPerSec, workers))
	}
	fmt.Fprintln(w, "  Latency:")
	fmt.Fprintf(w, "    Samples:       %d\n", d.Samples)
	fmt.Fprintf(w, "    Min:           %d %s\n", d.MinLatency, unit)
	fmt.Fprintf(w, "    Max:           %d %s\n", d.MaxLatency, unit)
	fmt.Fprintf(w, "    Avg:           %.2f %s\n", d.AvgLatency, unit)
	for _, p := range d.Percentiles {
		fmt.Fprintf(w, "    %-14s %d %s\n", percentileLabel(p.Percentile)+":", p.Value, unit)
	}
	if d.LowDiscards > 0 || d.HighDiscards > 0 {
		fmt.Fprintf(w, "  Discarded below range: %d, above range: %d\n", d.LowDiscards, d.HighDiscards)
	}
}

// PrintThresholdResults outputs one line per evaluated threshold.
func PrintThresholdResults(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
	if failed := threshold.Failed(results); failed > 0 {
		fmt.Fprintf(w, "  %d of %d thresholds failed\n", failed, len(results))
	}
}

func percentileLabel(p float64) string {
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", p), "0"), ".")
	return "P" + s
}
