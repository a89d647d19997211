package worker

import (
	"context"
	"math/rand"
	"sync"

	"github.com/torosent/benchhub/internal/metrics"
)

// SyntheticConfig shapes generated batches.
type SyntheticConfig struct {
	Writers         int   // write records per batch come from this many simulated writers
	Readers         int   // likewise for reads
	RecordsPerBatch int   // records per writer or reader per batch (default 100)
	RecordSize      int64 // bytes per record (default 1024)
	SamplesPerBatch int   // latency samples per direction (default 16)
	MeanLatency     int64 // mean latency in the server's unit (default 5)
	Seed            int64
}

// SyntheticSource generates batches with exponentially distributed latencies.
// It never runs dry; bound the run with Options.Batches or Options.Duration.
type SyntheticSource struct {
	cfg SyntheticConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSyntheticSource builds a SyntheticSource. Without writers or readers it
// simulates a single writer.
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	if cfg.Writers <= 0 && cfg.Readers <= 0 {
		cfg.Writers = 1
	}
	if cfg.RecordsPerBatch <= 0 {
		cfg.RecordsPerBatch = 100
	}
	if cfg.RecordSize <= 0 {
		cfg.RecordSize = 1024
	}
	if cfg.SamplesPerBatch <= 0 {
		cfg.SamplesPerBatch = 16
	}
	if cfg.MeanLatency <= 0 {
		cfg.MeanLatency = 5
	}
	return &SyntheticSource{cfg: cfg, rnd: rand.New(rand.NewSource(cfg.Seed))}
}

func (s *SyntheticSource) Next(ctx context.Context) (metrics.SampleBatch, error) {
	if err := ctx.Err(); err != nil {
		return metrics.SampleBatch{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var b metrics.SampleBatch
	if s.cfg.Writers > 0 {
		b.WriteCount = int64(s.cfg.Writers * s.cfg.RecordsPerBatch)
		b.WriteBytes = b.WriteCount * s.cfg.RecordSize
		b.WriteLatencies = s.latencies()
	}
	if s.cfg.Readers > 0 {
		b.ReadCount = int64(s.cfg.Readers * s.cfg.RecordsPerBatch)
		b.ReadBytes = b.ReadCount * s.cfg.RecordSize
		b.ReadLatencies = s.latencies()
	}
	b.MinLatency, b.MaxLatency = extremes(b.WriteLatencies, b.ReadLatencies)
	return b, nil
}

func (s *SyntheticSource) latencies() []int64 {
	out := make([]int64, s.cfg.SamplesPerBatch)
	for i := range out {
		out[i] = 1 + int64(s.rnd.ExpFloat64()*float64(s.cfg.MeanLatency))
	}
	return out
}

func extremes(sets ...[]int64) (lo, hi int64) {
	first := true
	for _, set := range sets {
		for _, v := range set {
			if first || v < lo {
				lo = v
			}
			if first || v > hi {
				hi = v
			}
			first = false
		}
	}
	return lo, hi
}
