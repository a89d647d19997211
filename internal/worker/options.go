package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/benchhub/internal/metrics"
)

// Source produces the next batch to send. Returning an error ends the run.
type Source interface {
	Next(ctx context.Context) (metrics.SampleBatch, error)
}

// Submitter delivers one batch to the aggregation server.
type Submitter interface {
	Submit(ctx context.Context, batch metrics.SampleBatch) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, batch metrics.SampleBatch) error

func (f SubmitterFunc) Submit(ctx context.Context, batch metrics.SampleBatch) error {
	return f(ctx, batch)
}

// ArrivalModel selects how batches are spaced in time.
type ArrivalModel string

const (
	ArrivalUniform ArrivalModel = "uniform"
	ArrivalPoisson ArrivalModel = "poisson"
)

// Options configure a Pump.
type Options struct {
	Concurrency    int           // sending goroutines
	Batches        int           // batches to send (0 means until Duration or the source ends)
	Duration       time.Duration // overall time limit (0 means none)
	RatePerSecond  float64       // batches per second (0 means unpaced)
	Arrival        ArrivalModel
	RandomSeed     int64
	Source         Source    // required
	Submitter      Submitter // required
	LimiterFactory func(rps float64) *rate.Limiter
	PoissonSampler func() float64
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Batches < 0 {
		o.Batches = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Arrival == "" {
		o.Arrival = ArrivalUniform
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps float64) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), burstFor(rps))
		}
	}
}
