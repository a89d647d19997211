// Package metrics defines the sample batches workers submit and the windows
// the aggregation engine merges them into.
//
// # Windows
//
// A [Window] holds running totals for the write and read directions and one
// HdrHistogram per direction. Histogram bounds come from a [WindowConfig] and
// are fixed for the life of the window:
//
//	w, err := metrics.NewWindow(metrics.WindowConfig{
//		Unit:               metrics.UnitMilliseconds,
//		MinLatency:         0,
//		MaxLatency:         180_000,
//		SignificantFigures: 3,
//	}, time.Now())
//
//	w.Merge(batch)
//	stats := w.Stats(time.Now())
//	w.Reset(time.Now())
//
// Merging only adds counts and takes minimums and maximums, so the result of
// merging a set of batches does not depend on their order.
//
// # Discards
//
// Samples are never allowed to fail a merge. Negative samples count as
// malformed, samples outside the histogram bounds count as low or high
// discards, and totals that would overflow an int64 are dropped and counted
// in [Stats.Overflowed].
//
// # Thread Safety
//
// Windows are not safe for concurrent use. The engine's single consumer
// goroutine owns them.
package metrics
