package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/benchhub/internal/metrics"
)

// Result summarizes a run.
type Result struct {
	Sent     int64 // batches the server accepted
	Errors   int64 // batches that failed after any retries
	Records  int64 // write + read records in accepted batches
	Duration time.Duration
	Err      error // why the source stopped, if it did not just run dry
}

// ErrSourceDone is returned by a Source that has nothing more to send.
var ErrSourceDone = errors.New("source exhausted")

// Pump sends batches from a Source to a Submitter.
type Pump struct {
	opt     Options
	arrival arrivalController
}

// New builds a Pump.
func New(opt Options) *Pump {
	opt.normalize()
	return &Pump{opt: opt, arrival: newArrivalController(opt)}
}

// Run sends until the batch limit, the duration, the source or ctx ends.
func (p *Pump) Run(ctx context.Context) Result {
	start := time.Now()
	var (
		scheduled atomic.Int64
		sent      atomic.Int64
		failed    atomic.Int64
		records   atomic.Int64
		sourceErr error
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if p.opt.Duration > 0 {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithTimeout(ctx, p.opt.Duration)
		defer cancelDeadline()
	}

	// The scheduler serializes pacing and source reads so workers never
	// overshoot the configured rate between them.
	batches := make(chan metrics.SampleBatch, p.opt.Concurrency)
	go func() {
		defer close(batches)
		for {
			if ctx.Err() != nil {
				return
			}
			if p.opt.Batches > 0 && scheduled.Load() >= int64(p.opt.Batches) {
				return
			}
			if err := p.arrival.Wait(ctx); err != nil {
				return
			}
			batch, err := p.opt.Source.Next(ctx)
			if err != nil {
				if !errors.Is(err, ErrSourceDone) && ctx.Err() == nil {
					sourceErr = err
				}
				return
			}
			scheduled.Add(1)
			select {
			case batches <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(p.opt.Concurrency)
	for i := 0; i < p.opt.Concurrency; i++ {
		go func() {
			defer wg.Done()
			for batch := range batches {
				if err := p.opt.Submitter.Submit(ctx, batch); err != nil {
					failed.Add(1)
					continue
				}
				sent.Add(1)
				records.Add(batch.WriteCount + batch.ReadCount)
			}
		}()
	}
	wg.Wait()

	return Result{
		Sent:     sent.Load(),
		Errors:   failed.Load(),
		Records:  records.Load(),
		Duration: time.Since(start),
		Err:      sourceErr,
	}
}
