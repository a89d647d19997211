package reporter

import "sync/atomic"

// Counts is an embeddable ReaderWriterSetter that stores the latest values.
// Adapters embed it and read the values when formatting.
type Counts struct {
	maxReaders atomic.Int64
	maxWriters atomic.Int64
	readers    atomic.Int64
	writers    atomic.Int64
}

var _ ReaderWriterSetter = (*Counts)(nil)

func (c *Counts) SetMaxReaders(n int) { c.maxReaders.Store(int64(n)) }
func (c *Counts) SetMaxWriters(n int) { c.maxWriters.Store(int64(n)) }
func (c *Counts) SetReaders(n int)    { c.readers.Store(int64(n)) }
func (c *Counts) SetWriters(n int)    { c.writers.Store(int64(n)) }

// Snapshot returns readers, maxReaders, writers, maxWriters.
func (c *Counts) Snapshot() (readers, maxReaders, writers, maxWriters int64) {
	return c.readers.Load(), c.maxReaders.Load(), c.writers.Load(), c.maxWriters.Load()
}

// PerWorker divides total by n, returning 0 when n is not positive.
func PerWorker(total float64, n int64) float64 {
	if n <= 0 {
		return 0
	}
	return total / float64(n)
}
