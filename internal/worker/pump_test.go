package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/worker"
)

// countingSource emits batches with one write record each until limit.
type countingSource struct {
	n     atomic.Int64
	limit int64
	err   error
}

func (s *countingSource) Next(ctx context.Context) (metrics.SampleBatch, error) {
	if err := ctx.Err(); err != nil {
		return metrics.SampleBatch{}, err
	}
	n := s.n.Add(1)
	if s.limit > 0 && n > s.limit {
		if s.err != nil {
			return metrics.SampleBatch{}, s.err
		}
		return metrics.SampleBatch{}, worker.ErrSourceDone
	}
	return metrics.SampleBatch{WriteCount: 1, WriteBytes: 10}, nil
}

type recordingSubmitter struct {
	mu      sync.Mutex
	batches []metrics.SampleBatch
	latency time.Duration
	failAll bool
}

func (r *recordingSubmitter) Submit(ctx context.Context, b metrics.SampleBatch) error {
	if r.latency > 0 {
		select {
		case <-time.After(r.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.failAll {
		return errors.New("refused")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestPumpRespectsBatchLimit(t *testing.T) {
	sub := &recordingSubmitter{latency: time.Millisecond}
	p := worker.New(worker.Options{
		Concurrency: 4,
		Batches:     25,
		Source:      &countingSource{},
		Submitter:   sub,
	})
	res := p.Run(context.Background())
	if res.Sent != 25 || sub.count() != 25 {
		t.Fatalf("sent %d (submitter saw %d), want 25", res.Sent, sub.count())
	}
	if res.Records != 25 {
		t.Errorf("records = %d, want 25", res.Records)
	}
	if res.Errors != 0 || res.Err != nil {
		t.Errorf("unexpected errors: %d %v", res.Errors, res.Err)
	}
}

func TestPumpHonorsDuration(t *testing.T) {
	sub := &recordingSubmitter{latency: 5 * time.Millisecond}
	p := worker.New(worker.Options{
		Concurrency: 10,
		Duration:    50 * time.Millisecond,
		Source:      &countingSource{},
		Submitter:   sub,
	})
	start := time.Now()
	res := p.Run(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("run took %s, expected about 50ms", elapsed)
	}
	if res.Sent == 0 {
		t.Fatal("expected some batches to be sent")
	}
}

func TestPumpStopsWhenSourceRunsDry(t *testing.T) {
	p := worker.New(worker.Options{
		Concurrency: 2,
		Source:      &countingSource{limit: 7},
		Submitter:   &recordingSubmitter{},
	})
	res := p.Run(context.Background())
	if res.Sent != 7 {
		t.Errorf("sent %d, want 7", res.Sent)
	}
	if res.Err != nil {
		t.Errorf("ErrSourceDone should not be reported, got %v", res.Err)
	}
}

func TestPumpReportsSourceFailure(t *testing.T) {
	boom := errors.New("disk gone")
	p := worker.New(worker.Options{
		Source:    &countingSource{limit: 3, err: boom},
		Submitter: &recordingSubmitter{},
	})
	res := p.Run(context.Background())
	if !errors.Is(res.Err, boom) {
		t.Fatalf("Err = %v, want %v", res.Err, boom)
	}
	if res.Sent != 3 {
		t.Errorf("sent %d, want 3", res.Sent)
	}
}

func TestPumpCountsFailedSubmits(t *testing.T) {
	p := worker.New(worker.Options{
		Concurrency: 3,
		Batches:     9,
		Source:      &countingSource{},
		Submitter:   &recordingSubmitter{failAll: true},
	})
	res := p.Run(context.Background())
	if res.Errors != 9 || res.Sent != 0 {
		t.Errorf("errors=%d sent=%d, want 9/0", res.Errors, res.Sent)
	}
}

func TestPumpPacesWithLimiter(t *testing.T) {
	var created atomic.Int64
	p := worker.New(worker.Options{
		Concurrency:   4,
		Batches:       10,
		RatePerSecond: 100,
		Source:        &countingSource{},
		Submitter:     &recordingSubmitter{},
		LimiterFactory: func(rps float64) *rate.Limiter {
			created.Add(1)
			return rate.NewLimiter(rate.Limit(rps), 1)
		},
	})
	start := time.Now()
	res := p.Run(context.Background())
	elapsed := time.Since(start)

	if created.Load() != 1 {
		t.Errorf("limiter factory called %d times, want 1", created.Load())
	}
	if res.Sent != 10 {
		t.Fatalf("sent %d, want 10", res.Sent)
	}
	// Ten batches at 100/s with a burst of one take at least 90ms.
	if elapsed < 80*time.Millisecond {
		t.Errorf("run took %s, pacing not applied", elapsed)
	}
}

func TestPumpPoissonArrival(t *testing.T) {
	p := worker.New(worker.Options{
		Batches:        5,
		RatePerSecond:  1000,
		Arrival:        worker.ArrivalPoisson,
		PoissonSampler: func() float64 { return 1 },
		Source:         &countingSource{},
		Submitter:      &recordingSubmitter{},
	})
	res := p.Run(context.Background())
	if res.Sent != 5 {
		t.Fatalf("sent %d, want 5", res.Sent)
	}
	if res.Duration < 4*time.Millisecond {
		t.Errorf("poisson gaps not applied: %s", res.Duration)
	}
}

func TestPumpCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := worker.New(worker.Options{
		Source:    &countingSource{},
		Submitter: &recordingSubmitter{},
	})
	res := p.Run(ctx)
	if res.Sent != 0 {
		t.Errorf("sent %d on a cancelled context", res.Sent)
	}
}
